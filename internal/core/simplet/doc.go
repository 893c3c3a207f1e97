// Package simplet provides pure functions for simplet deployment planning.
//
// A simplet is a self-contained application stack (a MySQL database plus one
// application container) provisioned on demand for a single business use
// case. This package holds the functional core: configuration types, the
// override merge, identity derivation and environment construction. Nothing
// here performs I/O; the imperative shell (internal/shell/docker) turns the
// values produced here into containers.
//
// # Functions
//
//   - Configuration: CommonConfig, SmtpConfig, Override, Merge
//   - Kinds: ParseKind and the static image/database binding table
//   - Identity: DeriveID, RegistryKey
//   - Environment: BuildEnv, AppEnvironment, DatabaseEnvironment
//   - Builder: fluent accumulator that snapshots, identifies and deploys
//
// # Usage
//
//	b := simplet.NewProofOfAttendance().
//		MySQLDB("poa_test").
//		AppSecret("s1")
//	id, _ := b.UniqueID()
//	stack, err := b.Deploy(ctx, deployer)
package simplet
