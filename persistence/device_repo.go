package persistence

import "context"

// Device is a locally registered subdevice record.
type Device struct {
	Key               string `db:"key"`
	Name              string `db:"name"`
	TemplateReference string `db:"template_reference"`
	ManifestJSON      string `db:"manifest_json"` // raw manifest, compared byte-for-byte on re-registration
}

// DeviceRepo stores locally registered subdevices, independent of the
// lighter-weight ExistingDevices key-only bookkeeping: it's the source of
// truth a reregistration sweep diffs manifests against.
type DeviceRepo interface {
	Save(ctx context.Context, d Device) error
	Get(ctx context.Context, key string) (Device, bool, error)
	Delete(ctx context.Context, key string) error
	All(ctx context.Context) ([]Device, error)
}
