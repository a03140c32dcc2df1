// Package process launches the supervised command as a local operating system
// process.
//
// On Unix the child is placed in its own process group and Kill delivers
// SIGKILL to the whole group, so helpers spawned by a shell wrapper die with
// it. On Windows only the direct child is terminated; grandchildren may
// survive and have to be cleaned up by the caller.
//
// Standard input, output and error are inherited by default so the child's
// own output reaches the operator unchanged.
package process
