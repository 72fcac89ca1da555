package access

// SystemActorID is the well-known UUID for the engine itself, used for
// attributing audit entries produced by automated tasks (catalog seeding,
// expiry sweeps) rather than by a principal.
const SystemActorID = "00000000-0000-0000-0000-000000000000"
