// Package slot implements the slot registry: the numbered configuration
// entries (value sensors, status indicators, controls and cameras) that
// every incoming reading, command and camera frame is validated against.
//
// A Registry wraps a Repository with an RWMutex-protected cache of active
// slots. Slot numbers are unique among active slots only; soft-deleting a
// slot frees its number for reuse. What happens to the old slot's readings,
// image and alerts is decided by the configured DeletePolicy.
//
//	repo := slot.NewSQLiteRepository(db.DB)
//	reg := slot.NewRegistry(repo, slot.Options{MaxSlots: 20, DeletePolicy: slot.PolicyCascade})
//	if err := reg.RefreshCache(ctx); err != nil {
//	    return err
//	}
package slot
