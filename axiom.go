// Package axiom implements the axiom deterministic verification core.
// This file provides the version and an overview of the sub-packages that make
// up the pipeline: caller -> key generation -> cipher engine -> policy
// executor -> receipt builder -> determinism verifier.
package axiom

// Version of the axiom Go implementation.
const Version = "0.4.0"

// API summary:
//
// Cipher engine:
//   - fhe.GenerateKeys(params, seed, mode) - Derive a key pair (frozen or secure)
//   - fhe.NewEncryptor(pk, mode, seed) - Bind an encryptor to a public key
//   - fhe.Decrypt(sk, ct) - Recover a plaintext, checking the noise bound
//   - fhe.NewEvaluator(params) - Add, Sub, Scale and noise queries
//
// Policies and receipts:
//   - policy.NewExecutor(...) - Run a procedure against an ordered constraint set
//   - receipt.NewBuilder(hash, authority) - Bind an accepted run into a signed receipt
//   - receipt.Verify(bundle, scheme, publicKey) - Third-party receipt verification
//   - verifier.New(executor, hash) - Determinism verifier (entropy count, risk score)
//
// Boundary facade:
//   - pipeline.New(params, mode, opts...) - Keys, encryption and policy receipts behind one value
//   - catalog.NewRegistry() - Built-in ledger, statistics and encrypted-sum procedures
//   - store.NewFileStore(dir, cacheSize) - Content-addressed receipt storage
//
// Parameters:
//   - core.GetParams(name) - Named parameter sets (AXM-1024, AXM-512, AXM-TOY)
