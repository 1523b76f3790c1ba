// Package integrationtest runs a test binary against a freshly started
// system under test.
//
// The runner picks an ephemeral port, starts the system under test with
// "--port <n>", waits for it to print one line to stdout, then runs the test
// binary with "--backend_port <n>" and reports its exit status. The system
// under test is always torn down before Run returns.
package integrationtest
