package resilientclient

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyNoResponseIsNetwork(t *testing.T) {
	cases := []error{
		errors.New("connection reset by peer"),
		&net.DNSError{Err: "no such host", Name: "api.negotia.example"},
		nil,
	}
	for _, cause := range cases {
		ne := Classify(cause, nil)
		require.NotNil(t, ne)
		assert.Equal(t, KindNetwork, ne.Kind)
		assert.Equal(t, "network", ne.Code)
		assert.Equal(t, messageCatalog[KindNetwork], ne.Message)
	}
}

func TestClassifyStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		kind   ErrorKind
	}{
		{400, KindValidation},
		{401, KindAuthentication},
		{403, KindAuthorization},
		{404, KindNotFound},
		{408, KindNetwork},
		{429, KindRateLimited},
		{500, KindServer},
		{502, KindServer},
		{503, KindServer},
		{418, KindUnknown},
		{422, KindUnknown},
	}
	for _, tc := range cases {
		ne := Classify(nil, &Response{StatusCode: tc.status})
		assert.Equal(t, tc.kind, ne.Kind, "status %d", tc.status)
		assert.NotEmpty(t, ne.Message, "status %d", tc.status)
	}
}

func TestClassifyValidationFieldDetails(t *testing.T) {
	body := []byte(`{"errors":[{"field":"email","message":"is invalid"},{"field":"rate","message":"must be positive"}]}`)
	ne := Classify(nil, &Response{StatusCode: 400, Data: body})

	assert.Equal(t, KindValidation, ne.Kind)
	assert.Equal(t, "400", ne.Code)
	assert.Equal(t, map[string]string{
		"email": "is invalid",
		"rate":  "must be positive",
	}, ne.Details)
	assert.Equal(t, "email: is invalid; rate: must be positive", ne.Message)
}

func TestClassifyServerMessagePreferred(t *testing.T) {
	ne := Classify(nil, &Response{
		StatusCode: 401,
		Data:       []byte(`{"message":"Invalid credentials"}`),
	})
	assert.Equal(t, KindAuthentication, ne.Kind)
	assert.Equal(t, "401", ne.Code)
	assert.Equal(t, "Invalid credentials", ne.Message)
}

func TestClassifyMessageObjectWithDetailsMap(t *testing.T) {
	body := []byte(`{"message":"validation failed","details":{"volume":"exceeds cap"}}`)
	ne := Classify(nil, &Response{StatusCode: 400, Data: body})

	assert.Equal(t, map[string]string{"volume": "exceeds cap"}, ne.Details)
	assert.Equal(t, "volume: exceeds cap", ne.Message)
}

func TestClassifyErrorBodyShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"loose errors list", `{"errors":["too slow","too loud"]}`, "too slow; too loud"},
		{"error field", `{"error":"boom"}`, "boom"},
		{"plain string", `"upstream exploded"`, "upstream exploded"},
		{"garbage", `<html>nope</html>`, messageCatalog[KindServer]},
		{"empty", ``, messageCatalog[KindServer]},
		{"unhelpful object", `{"status":"error"}`, messageCatalog[KindServer]},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ne := Classify(nil, &Response{StatusCode: 500, Data: []byte(tc.body)})
			assert.Equal(t, tc.want, ne.Message)
		})
	}
}

func TestNormalizedErrorUnwrap(t *testing.T) {
	cause := errors.New("tcp reset")
	ne := Classify(cause, nil)
	assert.ErrorIs(t, ne, cause)
	assert.Equal(t, ne.Message, ne.UserMessage())
}
