package sonos

import (
	"encoding/xml"
	"fmt"
	"html"
	"net/url"
	"strings"
)

// didlLite is the subset of DIDL-Lite track metadata the bridge reads.
// Tags carry no namespace so dc:, upnp: and r: elements all match.
type didlLite struct {
	XMLName xml.Name `xml:"DIDL-Lite"`
	Items   []struct {
		Title         string `xml:"title"`
		Creator       string `xml:"creator"`
		Album         string `xml:"album"`
		AlbumArtURI   string `xml:"albumArtURI"`
		StreamContent string `xml:"streamContent"`
		Res           struct {
			Duration string `xml:"duration,attr"`
		} `xml:"res"`
	} `xml:"item"`
}

// ParseTrackMetadata decodes DIDL-Lite track metadata. Empty metadata and
// NOT_IMPLEMENTED yield a zero Track. A relative album art URI is resolved
// against baseURL.
func ParseTrackMetadata(metadata, baseURL string) (Track, error) {
	metadata = strings.TrimSpace(metadata)
	if metadata == "" || metadata == "NOT_IMPLEMENTED" {
		return Track{}, nil
	}

	var doc didlLite
	if err := xml.Unmarshal([]byte(metadata), &doc); err != nil {
		return Track{}, fmt.Errorf("decoding track metadata: %w", err)
	}
	if len(doc.Items) == 0 {
		return Track{}, nil
	}

	item := doc.Items[0]
	track := Track{
		Title:    item.Title,
		Artist:   item.Creator,
		Album:    item.Album,
		Duration: ParseDuration(item.Res.Duration),
		ArtURI:   resolveArtURI(item.AlbumArtURI, baseURL),
	}
	// Radio streams put the current song in streamContent.
	if track.Title == "" || strings.HasPrefix(track.Title, "x-sonosapi") {
		track.Title = item.StreamContent
	}
	return track, nil
}

// resolveArtURI turns a device-relative art path into an absolute URL.
func resolveArtURI(art, baseURL string) string {
	art = strings.TrimSpace(html.UnescapeString(art))
	if art == "" {
		return ""
	}
	u, err := url.Parse(art)
	if err != nil {
		return ""
	}
	if u.IsAbs() || baseURL == "" {
		return art
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return art
	}
	return base.ResolveReference(u).String()
}

// zoneGroupState is the unescaped ZoneGroupState document.
type zoneGroupState struct {
	Groups []zoneGroupXML `xml:"ZoneGroups>ZoneGroup"`
}

// zoneGroups is the older form without the ZoneGroupState wrapper.
type zoneGroups struct {
	XMLName xml.Name       `xml:"ZoneGroups"`
	Groups  []zoneGroupXML `xml:"ZoneGroup"`
}

type zoneGroupXML struct {
	ID          string          `xml:"ID,attr"`
	Coordinator string          `xml:"Coordinator,attr"`
	Members     []zoneMemberXML `xml:"ZoneGroupMember"`
}

type zoneMemberXML struct {
	UUID      string `xml:"UUID,attr"`
	ZoneName  string `xml:"ZoneName,attr"`
	Location  string `xml:"Location,attr"`
	Invisible string `xml:"Invisible,attr"`
}

// ParseZoneGroupState decodes the ZoneGroupState document returned by
// GetZoneGroupState, with or without its outer wrapper.
func ParseZoneGroupState(doc string) ([]ZoneGroup, error) {
	doc = strings.TrimSpace(doc)
	var raw []zoneGroupXML
	if strings.HasPrefix(doc, "<ZoneGroups") {
		var zg zoneGroups
		if err := xml.Unmarshal([]byte(doc), &zg); err != nil {
			return nil, fmt.Errorf("decoding zone groups: %w", err)
		}
		raw = zg.Groups
	} else {
		var st zoneGroupState
		if err := xml.Unmarshal([]byte(doc), &st); err != nil {
			return nil, fmt.Errorf("decoding zone group state: %w", err)
		}
		raw = st.Groups
	}

	groups := make([]ZoneGroup, 0, len(raw))
	for _, g := range raw {
		group := ZoneGroup{ID: g.ID, Coordinator: g.Coordinator}
		for _, m := range g.Members {
			group.Members = append(group.Members, ZoneMember{
				UUID:      m.UUID,
				ZoneName:  m.ZoneName,
				Location:  m.Location,
				Invisible: m.Invisible == "1",
			})
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// deviceDescriptionXML is /xml/device_description.xml.
type deviceDescriptionXML struct {
	XMLName xml.Name `xml:"root"`
	Device  struct {
		ModelName   string `xml:"modelName"`
		ModelNumber string `xml:"modelNumber"`
		SerialNum   string `xml:"serialNum"`
		UDN         string `xml:"UDN"`
		RoomName    string `xml:"roomName"`
		DisplayName string `xml:"displayName"`
		ZoneType    string `xml:"zoneType"`
	} `xml:"device"`
}
