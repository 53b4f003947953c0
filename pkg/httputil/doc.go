// Package httputil provides retry helpers for registry clients.
//
// # Retry
//
// [Do] repeats an operation while it fails with a
// [RetryableError]. Anything else, such as a 404 from the registry, is
// returned on the first attempt:
//
//	err := httputil.Do(ctx, httputil.Policy{Attempts: 4, Delay: 50 * time.Millisecond},
//	    func(attempt int) error {
//	        resp, err := client.Do(req)
//	        if err != nil {
//	            return httputil.Retryable(err)
//	        }
//	        ...
//	    })
//
// The delay doubles after every failed attempt. A zero delay retries
// immediately, which is what tests use.
//
// Callers decide what is transient. The registry client treats transport
// errors, per-attempt timeouts, unexpected statuses and undecodable bodies as
// retryable, and a missing package as final.
package httputil
