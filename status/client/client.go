package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	fspath "path"
	"time"

	errorinfo "github.com/andydunstall/swim/pkg/status"
	"github.com/andydunstall/swim/server/membership"
)

// Client queries the status API of a node admin server.
type Client struct {
	httpClient *http.Client

	url *url.URL
}

func NewClient(url *url.URL, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		url: url,
	}
}

// Members returns the known state of each member in the nodes membership
// table.
func (c *Client) Members() ([]membership.MemberStatus, error) {
	r, err := c.request("/status/membership/members")
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var members []membership.MemberStatus
	if err := json.NewDecoder(r).Decode(&members); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return members, nil
}

// Member returns the known state of the member with the given address.
func (c *Client) Member(addr string) (*membership.MemberStatus, error) {
	r, err := c.request("/status/membership/members/" + addr)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var member membership.MemberStatus
	if err := json.NewDecoder(r).Decode(&member); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &member, nil
}

func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) request(path string) (io.ReadCloser, error) {
	url := new(url.URL)
	*url = *c.url

	url.Path = fspath.Join(url.Path, path)

	req, err := http.NewRequest(http.MethodGet, url.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()

		errorInfo := errorinfo.NewErrorInfo(resp.StatusCode, "")
		if err := json.NewDecoder(resp.Body).Decode(errorInfo); err != nil {
			return nil, fmt.Errorf("request: bad status: %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("request: %w", errorInfo)
	}

	return resp.Body, nil
}
