package client

import (
	"strconv"

	"golang.org/x/net/context"

	"github.com/gostor/samtgt/pkg/api"
)

// LogicalUnitList returns the logical units of the target.
func (cli *Client) LogicalUnitList(ctx context.Context) ([]api.LogicalUnitInfo, error) {
	var luns []api.LogicalUnitInfo
	resp, err := cli.get(ctx, "/lu/list", nil)
	if err != nil {
		return nil, err
	}
	err = decodeBody(resp, &luns)
	return luns, err
}

// LogicalUnitCreate creates a buffered logical unit in the target.
func (cli *Client) LogicalUnitCreate(ctx context.Context, req api.LogicalUnitCreateRequest) (api.LogicalUnitInfo, error) {
	var info api.LogicalUnitInfo
	resp, err := cli.post(ctx, "/lu/create", nil, req)
	if err != nil {
		return info, err
	}
	err = decodeBody(resp, &info)
	return info, err
}

// LogicalUnitRemove removes a logical unit, aborting its tasks.
func (cli *Client) LogicalUnitRemove(ctx context.Context, options api.LogicalUnitRemoveOptions) error {
	resp, err := cli.delete(ctx, "/lu/"+strconv.FormatInt(options.LUN, 10), nil)
	ensureReaderClosed(resp)
	return err
}
