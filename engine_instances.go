package clinicauth

import (
	"context"
	"errors"
	"time"

	"github.com/clinicore/clinicauth/internal/stores"
	"github.com/google/uuid"
)

// RegisterAppInstance binds a new mobile installation to the user. All
// previously unblocked instances are blocked in the same transaction that
// inserts the new one, so at most one unblocked instance exists at any
// point.
func (e *Engine) RegisterAppInstance(ctx context.Context, userID string, settings MobileAppSettings) (*AppInstance, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if !e.config.MobileApp.Enabled {
		return nil, ErrMobileBindingDisabled
	}

	rec := stores.InstanceRecord{
		ID:         uuid.NewString(),
		UserID:     userID,
		Platform:   settings.Platform,
		FCMID:      settings.FCMID,
		Version:    settings.Version,
		DeviceInfo: settings.DeviceInfo,
		MetaData:   settings.MetaData,
		CreatedAt:  time.Now().Unix(),
	}
	if err := e.instanceStore.Create(ctx, rec); err != nil {
		return nil, storeUnavailable(err)
	}

	e.emitAudit(ctx, auditEventInstanceCreated, userID, "", true, nil, map[string]string{
		"app_instance_id": rec.ID,
		"platform":        rec.Platform,
	})
	return instanceFromRecord(rec), nil
}

// ListAppInstances returns the user's registered instances, newest first.
func (e *Engine) ListAppInstances(ctx context.Context, userID string) ([]AppInstance, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	recs, err := e.instanceStore.List(ctx, userID)
	if err != nil {
		return nil, storeUnavailable(err)
	}

	out := make([]AppInstance, 0, len(recs))
	for _, rec := range recs {
		out = append(out, *instanceFromRecord(rec))
	}
	return out, nil
}

// BlockAppInstance marks one instance blocked. Administrative action,
// separate from the login flow.
func (e *Engine) BlockAppInstance(ctx context.Context, userID, instanceID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	err := e.instanceStore.Block(ctx, userID, instanceID)
	if err != nil {
		if errors.Is(err, stores.ErrInstanceNotFound) {
			return ErrSessionNotFound
		}
		return storeUnavailable(err)
	}
	return nil
}

func instanceFromRecord(rec stores.InstanceRecord) *AppInstance {
	return &AppInstance{
		ID:         rec.ID,
		UserID:     rec.UserID,
		Platform:   rec.Platform,
		FCMID:      rec.FCMID,
		Version:    rec.Version,
		Blocked:    rec.Blocked,
		DeviceInfo: rec.DeviceInfo,
		MetaData:   rec.MetaData,
		CreatedAt:  time.Unix(rec.CreatedAt, 0),
	}
}
