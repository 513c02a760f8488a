package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientValidate(t *testing.T) {
	valid := Client{Path: "/tmp/x", ServerHost: "localhost", ServerPort: "8080", Key: "k"}
	assert.NoError(t, valid.Validate())

	cases := []Client{
		{ServerHost: "localhost", ServerPort: "8080", Key: "k"},
		{Path: "/tmp/x", ServerPort: "8080", Key: "k"},
		{Path: "/tmp/x", ServerHost: "localhost", Key: "k"},
		{Path: "/tmp/x", ServerHost: "localhost", ServerPort: "8080"},
	}
	for _, c := range cases {
		assert.Error(t, c.Validate())
	}
}

func TestServerValidate(t *testing.T) {
	valid := Server{IP: "0.0.0.0", Port: "9090", Root: "/data"}
	assert.NoError(t, valid.Validate())

	cases := []Server{
		{Port: "9090", Root: "/data"},
		{IP: "0.0.0.0", Root: "/data"},
		{IP: "0.0.0.0", Port: "9090"},
	}
	for _, c := range cases {
		assert.Error(t, c.Validate())
	}
}
