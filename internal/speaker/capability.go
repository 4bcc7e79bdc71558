package speaker

import "context"

// fixedVolumeQuerier is the device surface the probe needs.
type fixedVolumeQuerier interface {
	SupportsFixedVolume(ctx context.Context) (bool, error)
	FixedVolume(ctx context.Context) (bool, error)
}

// CapabilityProbe tracks whether volume is under external control.
//
// Support for fixed volume is a property of the device class and is asked
// once. Whether it is currently active can change out of band, so Check
// asks the device again before every volume write.
type CapabilityProbe struct {
	device    fixedVolumeQuerier
	supported bool
	fixed     bool
}

// NewCapabilityProbe creates a probe for device.
func NewCapabilityProbe(device fixedVolumeQuerier) *CapabilityProbe {
	return &CapabilityProbe{device: device}
}

// Init queries support and, when supported, the current state.
func (p *CapabilityProbe) Init(ctx context.Context) (fixed bool, err error) {
	supported, err := p.device.SupportsFixedVolume(ctx)
	if err != nil {
		return false, remote("getSupportsOutputFixed", err)
	}
	p.supported = supported
	if !supported {
		p.fixed = false
		return false, nil
	}
	return p.Check(ctx)
}

// Check re-queries fixed volume when the device supports it.
func (p *CapabilityProbe) Check(ctx context.Context) (fixed bool, err error) {
	if !p.supported {
		return false, nil
	}
	fixed, err = p.device.FixedVolume(ctx)
	if err != nil {
		return p.fixed, remote("getOutputFixed", err)
	}
	p.fixed = fixed
	return fixed, nil
}

// Supported reports whether the device class has a fixed-volume mode.
func (p *CapabilityProbe) Supported() bool { return p.supported }

// Fixed reports the last observed fixed-volume state.
func (p *CapabilityProbe) Fixed() bool { return p.fixed }
