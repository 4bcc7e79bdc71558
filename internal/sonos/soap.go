package sonos

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Service is one UPnP control service of a zone player.
type Service struct {
	Name      string
	Namespace string
	Control   string
	Event     string
}

// Services used by the client.
var (
	AVTransport = Service{
		Name:      "AVTransport",
		Namespace: "urn:schemas-upnp-org:service:AVTransport:1",
		Control:   "/MediaRenderer/AVTransport/Control",
		Event:     "/MediaRenderer/AVTransport/Event",
	}
	RenderingControl = Service{
		Name:      "RenderingControl",
		Namespace: "urn:schemas-upnp-org:service:RenderingControl:1",
		Control:   "/MediaRenderer/RenderingControl/Control",
		Event:     "/MediaRenderer/RenderingControl/Event",
	}
	ZoneGroupTopology = Service{
		Name:      "ZoneGroupTopology",
		Namespace: "urn:schemas-upnp-org:service:ZoneGroupTopology:1",
		Control:   "/ZoneGroupTopology/Control",
		Event:     "/ZoneGroupTopology/Event",
	}
	DeviceProperties = Service{
		Name:      "DeviceProperties",
		Namespace: "urn:schemas-upnp-org:service:DeviceProperties:1",
		Control:   "/DeviceProperties/Control",
		Event:     "/DeviceProperties/Event",
	}
)

// maxResponseSize bounds SOAP and description bodies.
const maxResponseSize = 1 << 20

// arg is one SOAP input argument. Order is significant on the wire.
type arg struct {
	name  string
	value string
}

// soapEnvelope decodes a SOAP response body into its first element.
type soapEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Response soapResponse `xml:",any"`
	} `xml:"Body"`
}

type soapResponse struct {
	XMLName xml.Name
	Fields  []soapField `xml:",any"`
	// Populated when the element is a Fault.
	Detail struct {
		UPnPError struct {
			Code        int    `xml:"errorCode"`
			Description string `xml:"errorDescription"`
		} `xml:"UPnPError"`
	} `xml:"detail"`
}

type soapField struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// call invokes action on svc and returns the response arguments by name.
func (c *Client) call(ctx context.Context, svc Service, action string, args ...arg) (map[string]string, error) {
	var body bytes.Buffer
	body.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	body.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/"><s:Body>`)
	fmt.Fprintf(&body, `<u:%s xmlns:u="%s">`, action, svc.Namespace)
	for _, a := range args {
		fmt.Fprintf(&body, "<%s>", a.name)
		if err := xml.EscapeText(&body, []byte(a.value)); err != nil {
			return nil, fmt.Errorf("encoding %s: %w", a.name, err)
		}
		fmt.Fprintf(&body, "</%s>", a.name)
	}
	fmt.Fprintf(&body, `</u:%s></s:Body></s:Envelope>`, action)

	url := c.baseURL + svc.Control
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPACTION", fmt.Sprintf(`"%s#%s"`, svc.Namespace, action))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", svc.Name, action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", action, err)
	}

	var env soapEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &HTTPError{Method: action, URL: url, StatusCode: resp.StatusCode}
		}
		return nil, fmt.Errorf("decoding %s response: %w", action, err)
	}

	if env.Body.Response.XMLName.Local == "Fault" {
		return nil, &SOAPFault{
			Action:      action,
			Code:        env.Body.Response.Detail.UPnPError.Code,
			Description: env.Body.Response.Detail.UPnPError.Description,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{Method: action, URL: url, StatusCode: resp.StatusCode}
	}

	out := make(map[string]string, len(env.Body.Response.Fields))
	for _, f := range env.Body.Response.Fields {
		out[f.XMLName.Local] = f.Value
	}
	return out, nil
}

// instance is the InstanceID argument every AV service action takes first.
var instance = arg{"InstanceID", "0"}

var master = arg{"Channel", "Master"}

func boolArg(name string, v bool) arg {
	if v {
		return arg{name, "1"}
	}
	return arg{name, "0"}
}

func parseBool(s string) bool {
	s = strings.TrimSpace(s)
	return s == "1" || strings.EqualFold(s, "true")
}

func parseInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return n, nil
}

// ParseDuration converts an "H:MM:SS" time to whole seconds. Empty and
// NOT_IMPLEMENTED values are zero.
func ParseDuration(s string) int {
	s = strings.TrimSpace(s)
	if s == "" || s == "NOT_IMPLEMENTED" {
		return 0
	}
	// Fractional seconds are dropped.
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	total := 0
	for _, part := range strings.Split(s, ":") {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}

// FormatDuration renders whole seconds as "H:MM:SS".
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, seconds/60%60, seconds%60)
}
