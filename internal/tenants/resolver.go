package tenants

import (
	"context"
	"errors"
	"strings"
	"sync"

	"clinic_webhook_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Resolver maps provider device ids to tenants. Hits are served from memory
// for the lifetime of the process; concurrent misses for the same key share
// one backing-store query. Misses are not cached, so a tenant created after
// startup becomes visible on its first delivery.
type Resolver struct {
	reader   Reader
	byDevice sync.Map // deviceID -> Tenant
	byID     sync.Map // uuid.UUID -> Tenant
	group    singleflight.Group
	log      *logger.Logger
}

// NewResolver creates a resolver on top of reader.
func NewResolver(reader Reader, log *logger.Logger) *Resolver {
	return &Resolver{reader: reader, log: log}
}

// ResolveByDeviceID returns the active tenant for deviceID. ok is false when
// no active tenant owns the device; err is reserved for store failures.
func (r *Resolver) ResolveByDeviceID(ctx context.Context, deviceID string) (Tenant, bool, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return Tenant{}, false, nil
	}
	if cached, ok := r.byDevice.Load(deviceID); ok {
		return cached.(Tenant), true, nil
	}

	v, err, _ := r.group.Do("device:"+deviceID, func() (interface{}, error) {
		return r.reader.GetByDeviceID(ctx, deviceID)
	})
	return r.settle(v, err)
}

// ResolveByID returns the active tenant with the given id.
func (r *Resolver) ResolveByID(ctx context.Context, id uuid.UUID) (Tenant, bool, error) {
	if cached, ok := r.byID.Load(id); ok {
		return cached.(Tenant), true, nil
	}

	v, err, _ := r.group.Do("id:"+id.String(), func() (interface{}, error) {
		return r.reader.GetByID(ctx, id)
	})
	return r.settle(v, err)
}

func (r *Resolver) settle(v interface{}, err error) (Tenant, bool, error) {
	if errors.Is(err, ErrTenantNotFound) {
		return Tenant{}, false, nil
	}
	if err != nil {
		if r.log != nil {
			r.log.DatabaseError("resolve tenant", err)
		}
		return Tenant{}, false, err
	}

	tenant := v.(Tenant)
	r.byDevice.Store(tenant.DeviceID, tenant)
	r.byID.Store(tenant.ID, tenant)
	return tenant, true, nil
}
