// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunLogin, RunIssueOtp, RunValidateOtp, RunRegister, etc.)
// accepts a typed dependency struct of func fields and returns results without
// side-effects beyond those dependencies. Engine methods build the deps and
// convert between public and flow-local types.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the user store, OTP store, token issuer,
// email sender, audit dispatcher and metrics. They do NOT own any of these
// resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import deskauth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency funcs.
package flows
