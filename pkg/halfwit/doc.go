/*
Package halfwit provides a Go interface for isolating which member(s) of a set
of toggleable items (files, plugins, mods) cause an observed behavior of an
external program, by repeatedly enabling subsets and judging the outcome.

Sessions can most easily be created by passing a session config to
[GetSessionFromConfig], but can also be created manually by populating a
[Session] struct. For a manually created session to work, at least the
following fields have to be populated:
  - Candidates
  - Command, or a custom Oracle

After a session struct was acquired, the bisection can be started using
[Session.Run], which drives trials until the search converges or stalls and
returns a [Report] with the minimal [CulpritSet]-s and their journal
evidence.

Every trial is durably appended to an integrity-checked journal before the
search continues, and all search state is derived from the journal alone:
killing a session at any point and calling [Session.Run] again with the same
id continues exactly where the recorded trials left off.

By default trials toggle candidate files on disk through a [FileToggler] and
judge behavior by running the configured adapter command, which receives the
enabled and disabled candidates via environment variables and communicates
its observation through its exit status (zero: does not reproduce; the
configured skip status: cannot determine; anything else: reproduces). Both
mechanisms are injectable through the [Toggler] and [Oracle] interfaces.
*/
package halfwit
