// Package testing provides test utilities for the QuartiCal library.
//
// This package offers helpers for setting up test environments, particularly
// embedded NATS servers for integration testing of the distrib package. It
// follows Go's convention of providing testing utilities in a dedicated
// package (similar to net/http/httptest).
//
// Key utilities:
//   - StartEmbeddedNATS: Single in-process NATS server with JetStream
//   - NewTestLogger: types.Logger writing through testing.T
//
// Example usage:
//
//	import (
//	    "testing"
//	    qtest "github.com/JSKenyon/quartical/testing"
//	)
//
//	func TestMyComponent(t *testing.T) {
//	    _, nc := qtest.StartEmbeddedNATS(t)
//	    // Use nc for your tests
//	}
package testing
