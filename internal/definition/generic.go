package definition

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"zigbee-capability/internal/converter"
	"zigbee-capability/internal/zcl"
)

// Keys of the raw protocol operations every definition accepts unless a
// capability claims them.
const (
	KeyRead    = "read"
	KeyWrite   = "write"
	KeyCommand = "command"
)

// RawRequest is the value set on KeyRead, KeyWrite or KeyCommand:
//
//	{"cluster": "genBasic", "attributes": ["swBuildId"]}
//	{"cluster": "genOnOff", "payload": {"onTime": 10}}
//	{"cluster": "genIdentify", "command": "identify", "payload": {"identifytime": 5}}
//
// Endpoint selects a device endpoint by ID instead of the default one.
type RawRequest struct {
	Cluster          string         `json:"cluster"`
	Attributes       []string       `json:"attributes,omitempty"`
	Command          string         `json:"command,omitempty"`
	Payload          map[string]any `json:"payload,omitempty"`
	Endpoint         uint8          `json:"endpoint,omitempty"`
	ManufacturerCode uint16         `json:"manufacturer_code,omitempty"`
}

func parseRawRequest(key string, value any) (*RawRequest, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, &converter.ValueDomainError{Key: key, Value: value, Reason: err.Error()}
	}
	var req RawRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &converter.ValueDomainError{Key: key, Value: value, Reason: "expected an object: " + err.Error()}
	}
	if req.Cluster == "" {
		return nil, &converter.ValueDomainError{Key: key, Value: value, Reason: "cluster is required"}
	}
	return &req, nil
}

// target returns the endpoint named by the request, or ep.
func (r *RawRequest) target(ep converter.Endpoint, meta *converter.Meta) (converter.Endpoint, error) {
	if r.Endpoint == 0 || r.Endpoint == ep.ID() {
		return ep, nil
	}
	if meta != nil && meta.Device != nil {
		if other, ok := meta.Device.Endpoint(r.Endpoint); ok {
			return other, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", converter.ErrUnknownEndpoint, r.Endpoint)
}

// rawOutbound returns the converters for the raw operation keys. Names are
// checked against the snapshot so that a typo is a domain error rather
// than a transport failure.
func rawOutbound(snap *zcl.Snapshot) []converter.Outbound {
	domain := func(key string, value any, err error) error {
		return &converter.ValueDomainError{Key: key, Value: value, Reason: err.Error()}
	}
	return []converter.Outbound{
		{
			Keys: []string{KeyRead},
			Set: func(ctx context.Context, ep converter.Endpoint, key string, value any, meta *converter.Meta) (converter.State, error) {
				req, err := parseRawRequest(key, value)
				if err != nil {
					return nil, err
				}
				if len(req.Attributes) == 0 {
					return nil, &converter.ValueDomainError{Key: key, Value: value, Reason: "attributes are required"}
				}
				for _, a := range req.Attributes {
					if _, err := snap.ResolveAttribute(req.Cluster, a); err != nil {
						return nil, domain(key, value, err)
					}
				}
				ep, err = req.target(ep, meta)
				if err != nil {
					return nil, err
				}
				opts := converter.Options{ManufacturerCode: req.ManufacturerCode}
				return nil, converter.Transport("read", req.Cluster, ep.Read(ctx, req.Cluster, req.Attributes, opts))
			},
		},
		{
			Keys: []string{KeyWrite},
			Set: func(ctx context.Context, ep converter.Endpoint, key string, value any, meta *converter.Meta) (converter.State, error) {
				req, err := parseRawRequest(key, value)
				if err != nil {
					return nil, err
				}
				if len(req.Payload) == 0 {
					return nil, &converter.ValueDomainError{Key: key, Value: value, Reason: "payload is required"}
				}
				names := make([]string, 0, len(req.Payload))
				for a := range req.Payload {
					names = append(names, a)
				}
				sort.Strings(names)
				for _, a := range names {
					if _, err := snap.ResolveAttribute(req.Cluster, a); err != nil {
						return nil, domain(key, value, err)
					}
				}
				ep, err = req.target(ep, meta)
				if err != nil {
					return nil, err
				}
				opts := converter.Options{ManufacturerCode: req.ManufacturerCode}
				return nil, converter.Transport("write", req.Cluster, ep.Write(ctx, req.Cluster, req.Payload, opts))
			},
		},
		{
			Keys: []string{KeyCommand},
			Set: func(ctx context.Context, ep converter.Endpoint, key string, value any, meta *converter.Meta) (converter.State, error) {
				req, err := parseRawRequest(key, value)
				if err != nil {
					return nil, err
				}
				if _, err := snap.ResolveCommand(req.Cluster, req.Command); err != nil {
					return nil, domain(key, value, err)
				}
				ep, err = req.target(ep, meta)
				if err != nil {
					return nil, err
				}
				opts := converter.Options{ManufacturerCode: req.ManufacturerCode}
				return nil, converter.Transport("command", req.Cluster, ep.Command(ctx, req.Cluster, req.Command, req.Payload, opts))
			},
		},
	}
}
