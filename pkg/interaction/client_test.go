package interaction_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mamalluca/mamalluca-go/pkg/interaction"
	"github.com/mamalluca/mamalluca-go/pkg/interaction/mocks"
	"github.com/mamalluca/mamalluca-go/pkg/wire"
)

func TestClientListObjects(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	caller.EXPECT().
		Call(mock.Anything, wire.MethodObjectsList, mock.Anything).
		Return(json.RawMessage(`{"objects":["extruder","heater_bed","mcu"]}`), nil)

	objects, err := interaction.NewClient(caller).ListObjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"extruder", "heater_bed", "mcu"}, objects)
}

func TestClientListObjectsMissing(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	caller.EXPECT().
		Call(mock.Anything, wire.MethodObjectsList, mock.Anything).
		Return(json.RawMessage(`{}`), nil)

	_, err := interaction.NewClient(caller).ListObjects(context.Background())
	assert.ErrorIs(t, err, interaction.ErrUnexpectedReply)
}

func TestClientSubscribeParams(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	caller.EXPECT().
		Call(mock.Anything, wire.MethodObjectsSubscribe, mock.Anything).
		Run(func(_ context.Context, _ string, params interface{}) {
			data, err := json.Marshal(params)
			require.NoError(t, err)
			assert.JSONEq(t, `{"objects":{"extruder":null,"heater_bed":null}}`, string(data))
		}).
		Return(json.RawMessage(`{"eventtime":12.5,"status":{"extruder":{"temperature":21.0},"heater_bed":{}}}`), nil)

	result, err := interaction.NewClient(caller).Subscribe(context.Background(), []string{"extruder", "heater_bed"})
	require.NoError(t, err)
	assert.Equal(t, 12.5, result.EventTime)
	assert.Len(t, result.Status, 2)
	assert.JSONEq(t, `{"temperature":21.0}`, string(result.Status["extruder"]))
	assert.Zero(t, result.Seq)
}

// seqCaller answers every call with reply at a fixed frame sequence number.
type seqCaller struct {
	reply string
	seq   uint64
}

func (c *seqCaller) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	raw, _, err := c.CallSeq(ctx, method, params)
	return raw, err
}

func (c *seqCaller) CallSeq(context.Context, string, any) (json.RawMessage, uint64, error) {
	return json.RawMessage(c.reply), c.seq, nil
}

func TestClientSubscribeReportsSequence(t *testing.T) {
	caller := &seqCaller{reply: `{"eventtime":1.0,"status":{"extruder":{}}}`, seq: 42}

	result, err := interaction.NewClient(caller).Subscribe(context.Background(), []string{"extruder"})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), result.Seq)

	result, err = interaction.NewClient(caller).Query(context.Background(), []string{"extruder"})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), result.Seq)
}

func TestClientSubscribeMissingStatus(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	caller.EXPECT().
		Call(mock.Anything, wire.MethodObjectsSubscribe, mock.Anything).
		Return(json.RawMessage(`{"eventtime":1}`), nil)

	_, err := interaction.NewClient(caller).Subscribe(context.Background(), []string{"extruder"})
	assert.ErrorIs(t, err, interaction.ErrUnexpectedReply)
}

func TestClientPropagatesCallError(t *testing.T) {
	remote := &wire.RemoteError{Code: 400, Message: "Klippy Disconnected"}

	caller := mocks.NewMockCaller(t)
	caller.EXPECT().
		Call(mock.Anything, wire.MethodObjectsQuery, mock.Anything).
		Return(nil, remote)

	_, err := interaction.NewClient(caller).Query(context.Background(), []string{"toolhead"})

	var got *wire.RemoteError
	require.True(t, errors.As(err, &got))
	assert.Equal(t, 400, got.Code)
}

func TestClientPrinterInfo(t *testing.T) {
	caller := mocks.NewMockCaller(t)
	caller.EXPECT().
		Call(mock.Anything, wire.MethodPrinterInfo, mock.Anything).
		Return(json.RawMessage(`{"state":"ready","state_message":"Printer is ready","hostname":"voron","software_version":"v0.12.0"}`), nil)

	info, err := interaction.NewClient(caller).PrinterInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ready", info.State)
	assert.Equal(t, "voron", info.Hostname)
}
