// Package haiku provides the authenticated HTTP client and asynchronous
// facade for the Haiku+ API.
//
// # Overview
//
// The package has three layers:
//
//   - types.go, deeplink.go: wire types (User, Haiku, Time) and deep links
//   - client.go, credentials.go, retry.go, errors.go: the synchronous API and
//     the credential handshake
//   - facade.go: queue-backed asynchronous calls delivering Result values
//
// # Credential Handshake
//
// Every request carries at most one credential, chosen from an ordered
// policy table against a snapshot of the session:
//
//  1. a one-shot code goes out as X-OAuth-Code and is consumed
//  2. a session token goes out as Cookie: HaikuSessionId=<token>
//  3. an account with an ID token goes out as Authorization: Bearer <token>
//  4. otherwise the request is unauthenticated
//
// Every response, whatever its status, is checked for a Set-Cookie header
// starting with HaikuSessionId=; its value up to the first ';' replaces the
// stored session token.
//
// A 401 is never retried. With an X-OAuth-Code header it surfaces as an
// *APIError of kind CredentialCode wrapping ErrAuthChallenge; with a
// WWW-Authenticate header the session token is cleared first and the error
// is of kind CredentialRetry wrapping ErrSessionExpired.
//
// # Retries
//
// Requests follow RetryPolicy: 10 second timeout, 3 retries, each retry's
// timeout grown by the multiplier. Only ErrNetwork failures are retried.
// SignOut and Disconnect use NoRetry and always clear the local session.
//
// # Usage
//
//	client, err := haiku.NewClient(cfg.ServerURL, sess)
//	if err != nil {
//		return err
//	}
//	facade := haiku.NewFacade(client, q, sess, logger)
//	facade.FetchStream(ctx, haiku.StreamFriends, func(res haiku.Result[[]haiku.Haiku]) {
//		if !res.OK() {
//			showNotice(res.Err)
//			return
//		}
//		render(res.Value)
//	})
//
// # Testing
//
// Install swaps the API returned by New for a fake:
//
//	restore := haiku.Install(fakeAPI)
//	defer restore()
package haiku
