package client

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/context"

	"github.com/gostor/samtgt/pkg/api"
	"github.com/gostor/samtgt/pkg/apiserver"
	"github.com/gostor/samtgt/pkg/target"
	"github.com/gostor/samtgt/pkg/util"
	"github.com/gostor/samtgt/pkg/version"
)

func TestParseHost(t *testing.T) {
	for _, tc := range []struct {
		host                  string
		proto, addr, basePath string
		wantErr                bool
	}{
		{host: "tcp://127.0.0.1:23457", proto: "tcp", addr: "127.0.0.1:23457"},
		{host: "tcp://example.com:80/base", proto: "tcp", addr: "example.com:80", basePath: "/base"},
		{host: "unix:///var/run/samtgt.sock", proto: "unix", addr: "/var/run/samtgt.sock"},
		{host: "127.0.0.1", wantErr: true},
	} {
		proto, addr, basePath, err := ParseHost(tc.host)
		if tc.wantErr {
			assert.Error(t, err, tc.host)
			continue
		}
		require.NoError(t, err, tc.host)
		assert.Equal(t, tc.proto, proto)
		assert.Equal(t, tc.addr, addr)
		assert.Equal(t, tc.basePath, basePath)
	}
}

func TestGetAPIPath(t *testing.T) {
	cli, err := NewClient("tcp://127.0.0.1:23457/admin", "v1.0", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "/admin/v1.0/lu/list", cli.getAPIPath("/lu/list", nil))

	cli.UpdateClientVersion("")
	assert.Equal(t, "", cli.ClientVersion())
	assert.Equal(t, "/admin/lu/list", cli.getAPIPath("/lu/list", nil))
}

func newDaemon(t *testing.T) *target.Target {
	tgt := target.New(target.Options{Name: "iqn.2016-09.com.gostor:client"})
	require.NoError(t, tgt.Start())
	t.Cleanup(func() { tgt.Close() })
	return tgt
}

func newServer(t *testing.T, tgt *target.Target, addrs ...apiserver.Addr) *apiserver.Server {
	s, err := apiserver.New(&apiserver.Config{Version: version.APIVersion, Addrs: addrs})
	require.NoError(t, err)
	s.InitRouters(tgt)
	return s
}

func TestClientEndToEnd(t *testing.T) {
	tgt := newDaemon(t)
	ts := httptest.NewServer(newServer(t, tgt).Handler())
	defer ts.Close()

	cli, err := NewClient("tcp://"+ts.Listener.Addr().String(), version.APIVersion, nil, map[string]string{"User-Agent": "samtgt-test"})
	require.NoError(t, err)
	ctx := context.Background()

	info, err := cli.LogicalUnitCreate(ctx, api.LogicalUnitCreateRequest{LUN: 0, Storage: "mem", Path: "65536"})
	require.NoError(t, err)
	assert.Equal(t, uint64(128), info.Blocks)
	_, err = cli.LogicalUnitCreate(ctx, api.LogicalUnitCreateRequest{LUN: 0, Storage: "mem", Path: "65536"})
	assert.ErrorContains(t, err, "already registered")

	luns, err := cli.LogicalUnitList(ctx)
	require.NoError(t, err)
	require.Len(t, luns, 1)

	tinfo, err := cli.TargetInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "iqn.2016-09.com.gostor:client", tinfo.Name)
	assert.True(t, tinfo.Running)

	write := make([]byte, 10)
	write[0] = byte(api.WRITE_10)
	copy(write[7:9], util.MarshalUint16(1))
	payload := bytes.Repeat([]byte{0x5a}, 512)
	resp, err := cli.Command(ctx, api.CommandRequest{Initiator: "iqn.2016-09.com.example:cli", LUN: 0, TaskTag: 1, CDB: write, Data: payload})
	require.NoError(t, err)
	assert.Equal(t, api.SAM_STAT_GOOD, resp.Status)

	read := append([]byte(nil), write...)
	read[0] = byte(api.READ_10)
	resp, err = cli.Command(ctx, api.CommandRequest{Initiator: "iqn.2016-09.com.example:cli", LUN: 0, TaskTag: 2, CDB: read})
	require.NoError(t, err)
	assert.Equal(t, payload, resp.Data)

	tmf, err := cli.TaskManagement(ctx, api.TaskManagementRequest{
		Function: "target_reset",
		Nexus:    api.NewITNexus("iqn.2016-09.com.example:cli", ""),
	})
	require.NoError(t, err)
	assert.Equal(t, "TARGET_RESET", tmf.Function)
	assert.Equal(t, api.FunctionComplete.String(), tmf.Response)

	v, err := cli.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, version.VERSION, v.Version)

	require.NoError(t, cli.LogicalUnitRemove(ctx, api.LogicalUnitRemoveOptions{LUN: 0}))
	err = cli.LogicalUnitRemove(ctx, api.LogicalUnitRemoveOptions{LUN: 0})
	assert.ErrorContains(t, err, "no such logical unit")
}

func TestClientUnixSocket(t *testing.T) {
	tgt := newDaemon(t)
	sock := filepath.Join(t.TempDir(), "samtgt.sock")
	s := newServer(t, tgt, apiserver.Addr{Proto: "unix", Addr: sock})
	waitChan := make(chan error, 1)
	go s.Wait(waitChan)
	defer func() {
		s.Close()
		<-waitChan
	}()

	cli, err := NewClient("unix://"+sock, version.APIVersion, nil, nil)
	require.NoError(t, err)
	info, err := cli.TargetInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "iqn.2016-09.com.gostor:client", info.Name)
}

func TestClientNoDaemon(t *testing.T) {
	cli, err := NewClient("unix://"+filepath.Join(t.TempDir(), "missing.sock"), "", nil, nil)
	require.NoError(t, err)
	_, err = cli.LogicalUnitList(context.Background())
	assert.ErrorContains(t, err, "cannot connect")
}
