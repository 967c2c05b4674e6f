package pylonclient

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetWeightsRequestValidation(t *testing.T) {
	err := SetWeightsRequest{}.validate()
	assert.Error(t, err)

	err = SetWeightsRequest{Weights: map[string]float64{"": 1.0}}.validate()
	assert.Error(t, err)

	err = SetWeightsRequest{Weights: map[string]float64{"5F_alice": 1.0}}.validate()
	assert.NoError(t, err)
}

func TestGenerateCertificateKeypairRequestValidation(t *testing.T) {
	assert.Error(t, GenerateCertificateKeypairRequest{Algorithm: 99}.validate())
	assert.NoError(t, GenerateCertificateKeypairRequest{Algorithm: 1}.validate())
}

func TestSetCommitmentRequestValidation(t *testing.T) {
	assert.Error(t, SetCommitmentRequest{}.validate())
	assert.NoError(t, SetCommitmentRequest{Data: []byte{0xde, 0xad}}.validate())
	assert.NoError(t, SetCommitmentRequest{DataHex: "0xdead"}.validate())
	assert.Error(t, SetCommitmentRequest{DataHex: "not-hex"}.validate())
}

func TestDoValidatesBeforeSending(t *testing.T) {
	transport := NewMockTransport(WorkNormally{Response: RawResponse{StatusCode: 200, Body: []byte("{}")}})
	client := New(transport)

	_, err := Do[SetWeightsResponse](context.Background(), client, SetWeightsRequest{})
	assert.Error(t, err, "empty weights must fail validation before ever touching the transport")
	assert.Empty(t, transport.Requests)
}

func TestDoDecodesSuccessResponse(t *testing.T) {
	body, err := json.Marshal(SetWeightsResponse{Scheduled: true, Count: 2})
	require.NoError(t, err)
	transport := NewMockTransport(WorkNormally{Response: RawResponse{StatusCode: 200, Body: body}})
	client := New(transport)

	resp, err := client.SetWeights(context.Background(), map[string]float64{"5F_alice": 1.0})
	require.NoError(t, err)
	assert.True(t, resp.Scheduled)
	assert.Equal(t, 2, resp.Count)
	require.Len(t, transport.Requests, 1)
}

func TestDoSurfacesResponseError(t *testing.T) {
	transport := NewMockTransport(RaiseResponseError{StatusCode: 401, Msg: "unauthorized"})
	client := New(transport)

	_, err := client.SetWeights(context.Background(), map[string]float64{"5F_alice": 1.0})
	require.Error(t, err)
	var respErr ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, 401, respErr.StatusCode)
}

func TestDoSurfacesRequestError(t *testing.T) {
	transport := NewMockTransport(RaiseRequestError{Msg: "connection refused"})
	client := New(transport)

	_, err := client.SetWeights(context.Background(), map[string]float64{"5F_alice": 1.0})
	require.Error(t, err)
	var reqErr RequestError
	require.ErrorAs(t, err, &reqErr)
}

func TestMockTransportRecordsRequests(t *testing.T) {
	transport := NewMockTransport(
		WorkNormally{Response: RawResponse{StatusCode: 200, Body: []byte("{}")}},
		WorkNormally{Response: RawResponse{StatusCode: 200, Body: []byte("{}")}},
	)
	client := New(transport)

	_, err := client.GetMetagraph(context.Background(), nil)
	require.NoError(t, err)
	_, err = client.GetMetagraph(context.Background(), nil)
	require.NoError(t, err)

	assert.Len(t, transport.Requests, 2)
}

func TestMockTransportBehaviorsExhausted(t *testing.T) {
	transport := NewMockTransport(WorkNormally{Response: RawResponse{StatusCode: 200, Body: []byte("{}")}})
	client := New(transport)

	_, err := client.GetMetagraph(context.Background(), nil)
	require.NoError(t, err)
	_, err = client.GetMetagraph(context.Background(), nil)
	assert.Error(t, err)
}
