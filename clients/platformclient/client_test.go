package platformclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/goprovision/bootstrap"
	"github.com/nomis52/goprovision/document"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(url, WithCustomer("cust-1"), WithToken("secret"), WithLogger(testLogger()))
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		host    string
		opts    []Option
		wantErr string
	}{
		{
			name: "valid",
			host: "https://platform.test",
			opts: []Option{WithCustomer("c")},
		},
		{
			name:    "missing scheme",
			host:    "platform.test",
			opts:    []Option{WithCustomer("c")},
			wantErr: "must include scheme",
		},
		{
			name:    "invalid url",
			host:    "http://:invalid",
			opts:    []Option{WithCustomer("c")},
			wantErr: "invalid host URL",
		},
		{
			name:    "missing customer",
			host:    "https://platform.test",
			wantErr: "customer uuid is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.host, tt.opts...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, c.baseURL.String())
			assert.Equal(t, defaultTimeout, c.client.Timeout)
		})
	}
}

func TestOptions(t *testing.T) {
	hc := &http.Client{}
	logger := testLogger()
	c, err := New("https://platform.test",
		WithCustomer("c"), WithToken("tok"), WithHTTPClient(hc), WithTimeout(time.Second), WithLogger(logger))
	require.NoError(t, err)

	assert.Equal(t, "tok", c.token)
	assert.Same(t, hc, c.client)
	assert.Zero(t, hc.Timeout)
	assert.Equal(t, logger, c.logger)

	c, err = New("https://platform.test", WithCustomer("c"), WithTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, time.Second, c.client.Timeout)
}

func TestCustomerPath(t *testing.T) {
	c := newTestClient(t, "https://platform.test")
	assert.Equal(t, "/api/v1/customers/cust-1/providers/p%2F1/regions", c.customerPath("providers", "p/1", "regions"))
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		path string
		want string
	}{
		{
			name: "host only",
			base: "https://platform.test:9000",
			path: "/api/v1/customers/c/providers",
			want: "https://platform.test:9000/api/v1/customers/c/providers",
		},
		{
			name: "path prefix",
			base: "https://platform.test/platform",
			path: "/api/v1/customers/c/providers",
			want: "https://platform.test/platform/api/v1/customers/c/providers",
		},
		{
			name: "path prefix with trailing slash",
			base: "https://platform.test:9000/ui/",
			path: "/api/v1/customers/c/providers",
			want: "https://platform.test:9000/ui/api/v1/customers/c/providers",
		},
		{
			name: "escaped segment",
			base: "https://platform.test/platform",
			path: "/api/v1/customers/c/providers/p%2F1/regions",
			want: "https://platform.test/platform/api/v1/customers/c/providers/p%2F1/regions",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := newTestClient(t, tt.base).buildURL(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, u)
		})
	}

	_, err := newTestClient(t, "https://platform.test").buildURL(":%gh")
	assert.Error(t, err)
}

func TestCreateProvider_BasePathPrefix(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/platform/api/v1/customers/cust-1/providers", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"uuid":"prov-1"}`))
	}))
	defer ts.Close()

	ref, err := newTestClient(t, ts.URL+"/platform").CreateProvider(context.Background(), bootstrap.ProviderRequest{Code: "onprem", Name: "dc1"})
	require.NoError(t, err)
	assert.Equal(t, "prov-1", ref.UUID)
}

func TestCreateCalls(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		response string
		call     func(c *Client) (any, error)
		wantBody map[string]any
		want     any
	}{
		{
			name:     "provider",
			path:     "/api/v1/customers/cust-1/providers",
			response: `{"uuid":"prov-1","name":"dc1"}`,
			call: func(c *Client) (any, error) {
				return c.CreateProvider(context.Background(), bootstrap.ProviderRequest{Code: "onprem", Name: "dc1"})
			},
			wantBody: map[string]any{"code": "onprem", "name": "dc1"},
			want:     bootstrap.ProviderRef{UUID: "prov-1"},
		},
		{
			name:     "instance type",
			path:     "/api/v1/customers/cust-1/providers/prov-1/instance_types",
			response: `{"instanceTypeCode":"small"}`,
			call: func(c *Client) (any, error) {
				return c.CreateInstanceType(context.Background(), "prov-1", document.InstanceType{
					InstanceTypeCode: "small", NumCores: 2, MemSizeGB: 8,
					Volumes: []document.Volume{{MountPath: "/data", VolumeSizeGB: 100}},
				})
			},
			wantBody: map[string]any{
				"instanceTypeCode": "small",
				"numCores":         float64(2),
				"memSizeGB":        float64(8),
				"instanceTypeDetails": map[string]any{
					"volumeDetailsList": []any{map[string]any{"mountPath": "/data", "volumeSizeGB": float64(100)}},
				},
			},
			want: bootstrap.InstanceTypeRef{Code: "small"},
		},
		{
			name:     "region",
			path:     "/api/v1/customers/cust-1/providers/prov-1/regions",
			response: `{"uuid":"region-1","code":"us-west"}`,
			call: func(c *Client) (any, error) {
				return c.CreateRegion(context.Background(), "prov-1", document.Region{Code: "us-west", Latitude: 1.5, Longitude: -2})
			},
			wantBody: map[string]any{"code": "us-west", "name": "us-west", "latitude": 1.5, "longitude": float64(-2)},
			want:     bootstrap.ResourceRef{UUID: "region-1", Code: "us-west"},
		},
		{
			name:     "zone",
			path:     "/api/v1/customers/cust-1/providers/prov-1/regions/region-1/zones",
			response: `{"uuid":"zone-1","code":"az1"}`,
			call: func(c *Client) (any, error) {
				return c.CreateZone(context.Background(), "prov-1", "region-1", document.Zone{Code: "az1", Name: "Zone 1"})
			},
			wantBody: map[string]any{"code": "az1", "name": "Zone 1"},
			want:     bootstrap.ResourceRef{UUID: "zone-1", Code: "az1"},
		},
		{
			name:     "node",
			path:     "/api/v1/customers/cust-1/zones/zone-1/nodes",
			response: `{"10.0.0.1":{"nodeUuid":"node-1"}}`,
			call: func(c *Client) (any, error) {
				return c.CreateNodeInstance(context.Background(), "zone-1", document.Node{
					IP: "10.0.0.1", InstanceType: "small", Region: "us-west", Zone: "az1",
				})
			},
			wantBody: map[string]any{"nodes": []any{map[string]any{
				"ip": "10.0.0.1", "instanceType": "small", "region": "us-west", "zone": "az1",
			}}},
			want: bootstrap.NodeRef{UUID: "node-1", IP: "10.0.0.1"},
		},
		{
			name:     "access key",
			path:     "/api/v1/customers/cust-1/providers/prov-1/access_keys",
			response: `{"idKey":{"keyCode":"dc1-key","providerUUID":"prov-1"}}`,
			call: func(c *Client) (any, error) {
				return c.CreateAccessKey(context.Background(), "prov-1", "region-1", document.AccessKey{
					Code: "dc1-key", PrivateKeyContent: "PEM", SSHUser: "centos", SSHPort: 22, AirGapInstall: true,
				})
			},
			wantBody: map[string]any{
				"keyCode":                "dc1-key",
				"keyContent":             "PEM",
				"keyType":                "PRIVATE",
				"regionUUID":             "region-1",
				"sshUser":                "centos",
				"sshPort":                float64(22),
				"passwordlessSudoAccess": false,
				"airGapInstall":          true,
				"skipProvisioning":       false,
			},
			want: bootstrap.AccessKeyRef{Code: "dc1-key"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, tt.path, r.URL.EscapedPath())
				assert.Equal(t, "secret", r.Header.Get(TokenHeader))
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, tt.wantBody, body)

				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tt.response))
			}))
			defer ts.Close()

			got, err := tt.call(newTestClient(t, ts.URL))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		response   string
		wantStatus int
		wantErr    string
	}{
		{
			name:       "json error message",
			status:     http.StatusBadRequest,
			response:   `{"success":false,"error":"Region us-west already exists"}`,
			wantStatus: http.StatusBadRequest,
			wantErr:    "Region us-west already exists",
		},
		{
			name:       "field errors",
			status:     http.StatusBadRequest,
			response:   `{"error":{"code":["This field is required"]}}`,
			wantStatus: http.StatusBadRequest,
			wantErr:    "This field is required",
		},
		{
			name:       "plain text",
			status:     http.StatusInternalServerError,
			response:   "boom",
			wantStatus: http.StatusInternalServerError,
			wantErr:    "platform returned status 500: boom",
		},
		{
			name:       "empty body",
			status:     http.StatusUnauthorized,
			wantStatus: http.StatusUnauthorized,
			wantErr:    "Unauthorized",
		},
		{
			name:     "invalid json on success",
			status:   http.StatusOK,
			response: "not json",
			wantErr:  "failed to unmarshal response",
		},
		{
			name:     "missing uuid",
			status:   http.StatusOK,
			response: `{"code":"us-west"}`,
			wantErr:  "response has no uuid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.response))
			}))
			defer ts.Close()

			_, err := newTestClient(t, ts.URL).CreateRegion(context.Background(), "p", document.Region{Code: "us-west"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, err.Error(), `failed to create region "us-west"`)

			var apiErr *APIError
			if tt.wantStatus != 0 {
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			} else {
				assert.False(t, errors.As(err, &apiErr))
			}
		})
	}
}

func TestConnectionError(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	_, err := c.CreateProvider(context.Background(), bootstrap.ProviderRequest{Name: "dc1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request POST")
}

func TestContextCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"uuid":"x"}`))
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, ts.URL).CreateProvider(ctx, bootstrap.ProviderRequest{Name: "dc1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCreateProvider_Intercepted(t *testing.T) {
	defer gock.Off()

	hc := &http.Client{}
	gock.InterceptClient(hc)
	defer gock.RestoreClient(hc)

	gock.New("https://platform.test").
		Post("/api/v1/customers/cust-1/providers").
		MatchHeader(TokenHeader, "secret").
		JSON(map[string]any{"code": "onprem", "name": "dc1", "config": map[string]string{"YB_HOME_DIR": "/home/yb"}}).
		Reply(http.StatusOK).
		JSON(map[string]string{"uuid": "prov-1"})

	c, err := New("https://platform.test", WithCustomer("cust-1"), WithToken("secret"), WithHTTPClient(hc), WithLogger(testLogger()))
	require.NoError(t, err)

	ref, err := c.CreateProvider(context.Background(), bootstrap.ProviderRequest{
		Code:   "onprem",
		Name:   "dc1",
		Config: map[string]string{"YB_HOME_DIR": "/home/yb"},
	})
	require.NoError(t, err)
	assert.Equal(t, "prov-1", ref.UUID)
	assert.True(t, gock.IsDone())
}

func TestCreateAccessKey_InterceptedFailure(t *testing.T) {
	defer gock.Off()

	hc := &http.Client{}
	gock.InterceptClient(hc)
	defer gock.RestoreClient(hc)

	gock.New("https://platform.test").
		Post("/api/v1/customers/cust-1/providers/prov-1/access_keys").
		Reply(http.StatusConflict).
		JSON(map[string]string{"error": "key already exists"})

	c, err := New("https://platform.test", WithCustomer("cust-1"), WithHTTPClient(hc), WithLogger(testLogger()))
	require.NoError(t, err)

	_, err = c.CreateAccessKey(context.Background(), "prov-1", "region-1", document.AccessKey{Code: "k"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "key already exists", apiErr.Message)
	assert.True(t, gock.IsDone())
}
