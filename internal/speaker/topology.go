package speaker

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/nerrad567/gray-logic-sonos/internal/sonos"
)

// topologyQuerier is the device surface the group action needs.
type topologyQuerier interface {
	AllGroups(ctx context.Context) ([]sonos.ZoneGroup, error)
	ZoneInfo(ctx context.Context) (sonos.ZoneInfo, error)
	LeaveGroup(ctx context.Context) error
}

// GroupJoiner is a command channel to another zone player.
type GroupJoiner interface {
	JoinGroup(ctx context.Context, zoneName string) error
}

// Dialer opens a short-lived command channel to the zone at address.
type Dialer func(address string) GroupJoiner

var locationHost = regexp.MustCompile(`^http://([^:/]+)`)

// ZoneAddress extracts the host from a zone player's location URL.
func ZoneAddress(location string) (string, error) {
	m := locationHost.FindStringSubmatch(location)
	if m == nil {
		return "", fmt.Errorf("unparsable zone location %q", location)
	}
	return m[1], nil
}

// GroupPrefix returns the UUID prefix shared by a zone player's identifiers.
func GroupPrefix(mac string) string {
	return "RINCON_" + strings.ReplaceAll(mac, ":", "")
}

// BuildGroupAction builds the group action for the zone whose identifiers
// start with prefix. Each other visible group contributes one required
// boolean field named after its coordinator, defaulting to true when this
// zone is already one of its members.
func BuildGroupAction(groups []sonos.ZoneGroup, prefix string) ActionSpec {
	fields := make(map[string]InputField)
	for _, g := range groups {
		if strings.HasPrefix(g.ID, prefix) {
			continue
		}
		coord, ok := g.CoordinatorMember()
		if !ok || coord.Invisible {
			continue
		}
		member := false
		for _, m := range g.Members {
			if strings.HasPrefix(m.UUID, prefix) {
				member = true
				break
			}
		}
		fields[coord.ZoneName] = InputField{Type: "boolean", Title: coord.ZoneName, Default: member}
	}

	required := make([]string, 0, len(fields))
	for name := range fields {
		required = append(required, name)
	}
	sort.Strings(required)

	return ActionSpec{
		Name:        ActionGroup,
		Title:       "Group",
		Description: "Join the groups of the selected zones",
		Input: &InputSchema{
			Type:       "object",
			Properties: fields,
			Required:   required,
		},
	}
}

// TopologyActionBuilder builds and executes the group action.
type TopologyActionBuilder struct {
	device topologyQuerier
	dial   Dialer
	prefix string
}

// NewTopologyActionBuilder creates a builder. dial is used to reach other
// zones when joining their groups.
func NewTopologyActionBuilder(device topologyQuerier, dial Dialer) *TopologyActionBuilder {
	return &TopologyActionBuilder{device: device, dial: dial}
}

// Prefix returns this zone's identifier prefix, querying it on first use.
func (b *TopologyActionBuilder) Prefix(ctx context.Context) (string, error) {
	if b.prefix != "" {
		return b.prefix, nil
	}
	info, err := b.device.ZoneInfo(ctx)
	if err != nil {
		return "", remote("getZoneInfo", err)
	}
	if info.MACAddress == "" {
		return "", remote("getZoneInfo", fmt.Errorf("zone info has no MAC address"))
	}
	b.prefix = GroupPrefix(info.MACAddress)
	return b.prefix, nil
}

// Build queries the current topology and returns the group action.
func (b *TopologyActionBuilder) Build(ctx context.Context) (ActionSpec, error) {
	prefix, err := b.Prefix(ctx)
	if err != nil {
		return ActionSpec{}, err
	}
	groups, err := b.device.AllGroups(ctx)
	if err != nil {
		return ActionSpec{}, remote("getAllGroups", err)
	}
	return BuildGroupAction(groups, prefix), nil
}

// Execute leaves the current group and then, in input order, links every
// zone whose field is true: a short-lived client to that zone's
// coordinator issues JoinGroup(selfName). Any failure aborts the remaining
// fields.
func (b *TopologyActionBuilder) Execute(ctx context.Context, input ActionInput, selfName string) error {
	if err := b.device.LeaveGroup(ctx); err != nil {
		return remote("leaveGroup", err)
	}

	groups, err := b.device.AllGroups(ctx)
	if err != nil {
		return remote("getAllGroups", err)
	}
	coordinators := make(map[string]sonos.ZoneMember, len(groups))
	for _, g := range groups {
		if coord, ok := g.CoordinatorMember(); ok {
			coordinators[strings.ToLower(coord.ZoneName)] = coord
		}
	}

	for _, field := range input {
		if join, _ := field.Value.(bool); !join {
			continue
		}
		coord, ok := coordinators[strings.ToLower(field.Name)]
		if !ok {
			return remote("joinGroup", fmt.Errorf("zone %q not in topology", field.Name))
		}
		addr, err := ZoneAddress(coord.Location)
		if err != nil {
			return remote("joinGroup", err)
		}
		if err := b.dial(addr).JoinGroup(ctx, selfName); err != nil {
			return remote("joinGroup", fmt.Errorf("zone %q: %w", field.Name, err))
		}
	}
	return nil
}
