package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/docker/go-connections/sockets"
	"golang.org/x/net/context"
)

// DefaultHost is the address the daemon listens on by default.
const DefaultHost = "tcp://127.0.0.1:23457"

// Client talks to the admin API of a samtgt daemon.
type Client struct {
	// proto holds the client protocol i.e. unix.
	proto string
	// addr holds the client address.
	addr string
	// basePath holds the path to prepend to the requests.
	basePath string
	// client sends the requests over a transport configured for proto.
	client *http.Client
	// version of the server to talk to.
	version string
	// custom http headers configured by users.
	customHTTPHeaders map[string]string
}

// NewClient initializes a new API client for the given host and API version.
// It uses the given http client, or a new one configured for the host
// protocol when client is nil.
// It also initializes the custom http headers to add to each request.
//
// It won't send any version information if the version number is empty. It is
// highly recommended that you set a version or your client may break if the
// server is upgraded.
func NewClient(host string, version string, client *http.Client, httpHeaders map[string]string) (*Client, error) {
	proto, addr, basePath, err := ParseHost(host)
	if err != nil {
		return nil, err
	}

	if client == nil {
		tr := &http.Transport{}
		if err := sockets.ConfigureTransport(tr, proto, addr); err != nil {
			return nil, err
		}
		client = &http.Client{Transport: tr}
	}

	return &Client{
		proto:             proto,
		addr:              addr,
		basePath:          basePath,
		client:            client,
		version:           version,
		customHTTPHeaders: httpHeaders,
	}, nil
}

// getAPIPath returns the versioned request path to call the api.
// It appends the query parameters to the path if they are not empty.
func (cli *Client) getAPIPath(p string, query url.Values) string {
	var apiPath string
	if cli.version != "" {
		v := strings.TrimPrefix(cli.version, "v")
		apiPath = fmt.Sprintf("%s/v%s%s", cli.basePath, v, p)
	} else {
		apiPath = fmt.Sprintf("%s%s", cli.basePath, p)
	}

	u := &url.URL{
		Path: apiPath,
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// ClientVersion returns the version string associated with this
// instance of the Client.
func (cli *Client) ClientVersion() string {
	return cli.version
}

// UpdateClientVersion updates the version string associated with this
// instance of the Client.
func (cli *Client) UpdateClientVersion(v string) {
	cli.version = v
}

// ParseHost verifies that the given host strings is valid.
func ParseHost(host string) (string, string, string, error) {
	protoAddrParts := strings.SplitN(host, "://", 2)
	if len(protoAddrParts) == 1 {
		return "", "", "", fmt.Errorf("unable to parse samtgt host `%s`", host)
	}

	var basePath string
	proto, addr := protoAddrParts[0], protoAddrParts[1]
	if proto == "tcp" {
		parsed, err := url.Parse("tcp://" + addr)
		if err != nil {
			return "", "", "", err
		}
		addr = parsed.Host
		basePath = parsed.Path
	}
	return proto, addr, basePath, nil
}

// serverResponse is a wrapper for http API responses.
type serverResponse struct {
	body       io.ReadCloser
	statusCode int
}

func (cli *Client) get(ctx context.Context, path string, query url.Values) (serverResponse, error) {
	return cli.sendRequest(ctx, http.MethodGet, path, query, nil)
}

func (cli *Client) post(ctx context.Context, path string, query url.Values, obj interface{}) (serverResponse, error) {
	body, err := encodeBody(obj)
	if err != nil {
		return serverResponse{}, err
	}
	return cli.sendRequest(ctx, http.MethodPost, path, query, body)
}

func (cli *Client) delete(ctx context.Context, path string, query url.Values) (serverResponse, error) {
	return cli.sendRequest(ctx, http.MethodDelete, path, query, nil)
}

func encodeBody(obj interface{}) (io.Reader, error) {
	if obj == nil {
		return nil, nil
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

func (cli *Client) sendRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (serverResponse, error) {
	req, err := http.NewRequest(method, cli.getAPIPath(path, query), body)
	if err != nil {
		return serverResponse{}, err
	}
	for k, v := range cli.customHTTPHeaders {
		req.Header.Set(k, v)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	req.Host = cli.addr
	req.URL.Host = cli.addr
	req.URL.Scheme = "http"
	if cli.proto == "unix" || cli.proto == "npipe" {
		// the transport dials the socket, the host only has to be valid
		req.Host = "samtgt"
		req.URL.Host = "samtgt"
	}

	resp, err := cli.client.Do(req.WithContext(ctx))
	if err != nil {
		return serverResponse{}, fmt.Errorf("cannot connect to the samtgt daemon at %s://%s: %v", cli.proto, cli.addr, err)
	}

	sr := serverResponse{body: resp.Body, statusCode: resp.StatusCode}
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return sr, err
		}
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return sr, fmt.Errorf("Error response from daemon: %s", msg)
	}
	return sr, nil
}

func decodeBody(resp serverResponse, v interface{}) error {
	defer ensureReaderClosed(resp)
	return json.NewDecoder(resp.body).Decode(v)
}

func ensureReaderClosed(response serverResponse) {
	if body := response.body; body != nil {
		// Drain up to 512 bytes and close the body to let the Transport reuse the connection
		io.CopyN(io.Discard, body, 512)
		body.Close()
	}
}
