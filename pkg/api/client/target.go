package client

import (
	"golang.org/x/net/context"

	"github.com/gostor/samtgt/pkg/api"
)

// TargetInfo returns the description of the target.
func (cli *Client) TargetInfo(ctx context.Context) (api.TargetInfo, error) {
	var info api.TargetInfo
	resp, err := cli.get(ctx, "/target/info", nil)
	if err != nil {
		return info, err
	}
	err = decodeBody(resp, &info)
	return info, err
}

// TaskManagement runs a task management function in the target.
func (cli *Client) TaskManagement(ctx context.Context, req api.TaskManagementRequest) (api.TaskManagementResponse, error) {
	var tmf api.TaskManagementResponse
	resp, err := cli.post(ctx, "/target/tmf", nil, req)
	if err != nil {
		return tmf, err
	}
	err = decodeBody(resp, &tmf)
	return tmf, err
}

// Command submits a CDB and waits for its completion.
func (cli *Client) Command(ctx context.Context, req api.CommandRequest) (api.CommandResponse, error) {
	var cmd api.CommandResponse
	resp, err := cli.post(ctx, "/target/command", nil, req)
	if err != nil {
		return cmd, err
	}
	err = decodeBody(resp, &cmd)
	return cmd, err
}

// Version returns the version of the daemon.
func (cli *Client) Version(ctx context.Context) (api.Version, error) {
	var v api.Version
	resp, err := cli.get(ctx, "/version", nil)
	if err != nil {
		return v, err
	}
	err = decodeBody(resp, &v)
	return v, err
}
