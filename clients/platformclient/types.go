package platformclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/nomis52/goprovision/document"
)

// APIError is returned for responses outside the 2xx range.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("platform returned status %d (%s)", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("platform returned status %d: %s", e.StatusCode, e.Message)
}

// maxErrorMessage bounds the raw body kept in an APIError.
const maxErrorMessage = 512

func newAPIError(status int, body []byte) *APIError {
	var parsed struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch {
		case len(parsed.Error) > 0:
			var s string
			if json.Unmarshal(parsed.Error, &s) == nil {
				msg = s
			} else {
				// Field errors come back as an object keyed by field name.
				msg = string(parsed.Error)
			}
		case parsed.Message != "":
			msg = parsed.Message
		}
	}
	if len(msg) > maxErrorMessage {
		msg = msg[:maxErrorMessage] + "..."
	}
	return &APIError{StatusCode: status, Message: msg}
}

type providerResponse struct {
	UUID string `json:"uuid"`
}

type volumeDetails struct {
	VolumeSizeGB float64 `json:"volumeSizeGB"`
	MountPath    string  `json:"mountPath"`
}

type instanceTypeDetails struct {
	VolumeDetailsList []volumeDetails `json:"volumeDetailsList"`
}

type instanceTypeRequest struct {
	InstanceTypeCode string              `json:"instanceTypeCode"`
	NumCores         float64             `json:"numCores"`
	MemSizeGB        float64             `json:"memSizeGB"`
	Details          instanceTypeDetails `json:"instanceTypeDetails"`
}

func newInstanceTypeRequest(it document.InstanceType) instanceTypeRequest {
	volumes := make([]volumeDetails, 0, len(it.Volumes))
	for _, v := range it.Volumes {
		volumes = append(volumes, volumeDetails{VolumeSizeGB: v.VolumeSizeGB, MountPath: v.MountPath})
	}
	return instanceTypeRequest{
		InstanceTypeCode: it.InstanceTypeCode,
		NumCores:         it.NumCores,
		MemSizeGB:        it.MemSizeGB,
		Details:          instanceTypeDetails{VolumeDetailsList: volumes},
	}
}

type instanceTypeResponse struct {
	InstanceTypeCode string `json:"instanceTypeCode"`
}

type regionRequest struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type zoneRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type resourceResponse struct {
	UUID string `json:"uuid"`
	Code string `json:"code"`
}

type nodeDetails struct {
	IP           string `json:"ip"`
	SSHUser      string `json:"sshUser,omitempty"`
	InstanceType string `json:"instanceType"`
	InstanceName string `json:"instanceName,omitempty"`
	Region       string `json:"region"`
	Zone         string `json:"zone"`
}

type nodeRequest struct {
	Nodes []nodeDetails `json:"nodes"`
}

// nodeResponse is one entry of the ip-keyed map returned for node creation.
type nodeResponse struct {
	NodeUUID string `json:"nodeUuid"`
}

type accessKeyRequest struct {
	KeyCode                string   `json:"keyCode"`
	KeyContent             string   `json:"keyContent"`
	KeyType                string   `json:"keyType"`
	RegionUUID             string   `json:"regionUUID"`
	SSHUser                string   `json:"sshUser"`
	SSHPort                int      `json:"sshPort,omitempty"`
	PasswordlessSudoAccess bool     `json:"passwordlessSudoAccess"`
	AirGapInstall          bool     `json:"airGapInstall"`
	SkipProvisioning       bool     `json:"skipProvisioning"`
	NTPServers             []string `json:"ntpServers,omitempty"`
}

type accessKeyResponse struct {
	IDKey struct {
		KeyCode string `json:"keyCode"`
	} `json:"idKey"`
}
