package event

import (
	"encoding/json"
	"fmt"
)

// Report is the wire record accepted by the collection endpoint.
// Structured context (device, network, performance, extra) travels as
// JSON-encoded strings inside the record, matching the ingest schema.
type Report struct {
	ProjectID       string `json:"projectId"`
	Type            string `json:"type"`
	ErrorMessage    string `json:"errorMessage,omitempty"`
	ErrorStack      string `json:"errorStack,omitempty"`
	PageURL         string `json:"pageUrl,omitempty"`
	UserID          string `json:"userId,omitempty"`
	UserAgent       string `json:"userAgent,omitempty"`
	DeviceInfo      string `json:"deviceInfo,omitempty"`
	NetworkInfo     string `json:"networkInfo,omitempty"`
	PerformanceData string `json:"performanceData,omitempty"`
	RequestURL      string `json:"requestUrl,omitempty"`
	RequestMethod   string `json:"requestMethod,omitempty"`
	ResponseStatus  int    `json:"responseStatus,omitempty"`
	Duration        int64  `json:"duration,omitempty"`
	ExtraData       string `json:"extraData,omitempty"`
}

// extra is the shape serialized into Report.ExtraData.
type extra struct {
	Env         string             `json:"env,omitempty"`
	Scene       string             `json:"scene,omitempty"`
	At          int64              `json:"atMs"`
	Fingerprint uint64             `json:"fingerprint,omitempty"`
	Tags        map[string]string  `json:"tags,omitempty"`
	Behavior    []BehaviorItem     `json:"behavior,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	MetricName  string             `json:"metricName,omitempty"`
	Filename    string             `json:"filename,omitempty"`
	Line        int                `json:"line,omitempty"`
	Column      int                `json:"column,omitempty"`
}

// BuildReport converts a decorated report into the wire record. An
// error means the record cannot be encoded (for example a breadcrumb
// argument that JSON cannot represent); callers drop that single
// record and move on.
func BuildReport(projectID string, r *DecoratedReport) (Report, error) {
	out := Report{
		ProjectID: projectID,
		Type:      string(r.Payload.Kind),
		PageURL:   r.PageURL,
		UserID:    r.UserID,
		UserAgent: r.UserAgent,
	}

	ex := extra{
		Env:         r.Env,
		Scene:       r.Scene,
		At:          r.At.UnixMilli(),
		Fingerprint: r.Fingerprint,
		Tags:        r.Tags,
		Behavior:    r.Behavior,
	}

	switch r.Payload.Kind {
	case KindError:
		if p := r.Payload.Error; p != nil {
			out.ErrorMessage = p.Message
			out.ErrorStack = p.Stack
			ex.Filename = p.Filename
			ex.Line = p.Line
			ex.Column = p.Column
		}
	case KindHTTP:
		if p := r.Payload.HTTP; p != nil {
			out.RequestURL = p.URL
			out.RequestMethod = p.Method
			out.ResponseStatus = p.StatusCode
			out.Duration = p.Duration.Milliseconds()
			out.ErrorMessage = p.Error
		}
	case KindPerformance:
		if p := r.Payload.Performance; p != nil {
			ex.MetricName = p.Metric
			ex.Metrics = p.Metrics
		}
	case KindBehavior:
		if p := r.Payload.Behavior; p != nil {
			ex.MetricName = p.Method
			if len(p.Args) > 0 {
				// Args ride along in ExtraData via the behavior trail;
				// encode them here to surface encoding failures early.
				if _, err := json.Marshal(p.Args); err != nil {
					return Report{}, fmt.Errorf("encode behavior args: %w", err)
				}
			}
		}
	}

	if len(r.Device) > 0 {
		s, err := encodeField("device info", r.Device)
		if err != nil {
			return Report{}, err
		}
		out.DeviceInfo = s
	}
	if len(r.Network) > 0 {
		s, err := encodeField("network info", r.Network)
		if err != nil {
			return Report{}, err
		}
		out.NetworkInfo = s
	}
	if len(r.Performance) > 0 {
		s, err := encodeField("performance data", r.Performance)
		if err != nil {
			return Report{}, err
		}
		out.PerformanceData = s
	}

	s, err := encodeField("extra data", ex)
	if err != nil {
		return Report{}, err
	}
	out.ExtraData = s

	return out, nil
}

func encodeField(what string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", what, err)
	}
	return string(b), nil
}
