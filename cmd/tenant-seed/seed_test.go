package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"clinic_webhook_backend/internal/tenants"
	"clinic_webhook_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestParseSeedFile(t *testing.T) {
	input := `
tenants:
  - slug: clinica-norte
    name: Clínica Norte
    deviceId: dev-1
    webhookUrl: https://automation.example.com/hook
    handoffWindow: 2h
    timezone: America/Mexico_City
  - slug: clinica-sur
    name: Clínica Sur
    deviceId: dev-2
    isActive: false
`
	params, err := parseSeedFile(strings.NewReader(input), validator.New())
	require.NoError(t, err)
	require.Len(t, params, 2)
	require.Equal(t, 2*time.Hour, params[0].HandoffWindow)
	require.Nil(t, params[0].IsActive)
	require.NotNil(t, params[1].IsActive)
	require.False(t, *params[1].IsActive)
}

func TestParseSeedFileRejects(t *testing.T) {
	cases := map[string]string{
		"empty":          ``,
		"no tenants":     "tenants: []\n",
		"unknown field":  "tenants:\n  - slug: ab\n    name: A\n    deviceId: d\n    color: red\n",
		"missing device": "tenants:\n  - slug: ab\n    name: A\n",
		"bad url":        "tenants:\n  - slug: ab\n    name: A\n    deviceId: d\n    webhookUrl: not a url\n",
		"dup slug":       "tenants:\n  - {slug: ab, name: A, deviceId: d1}\n  - {slug: ab, name: B, deviceId: d2}\n",
		"dup device":     "tenants:\n  - {slug: ab, name: A, deviceId: d1}\n  - {slug: cd, name: B, deviceId: d1}\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseSeedFile(strings.NewReader(input), validator.New())
			require.Error(t, err)
		})
	}
}

func TestWriteTenantMasksSecrets(t *testing.T) {
	var buf bytes.Buffer
	err := writeTenant(&buf, tenants.Tenant{
		ID:              uuid.New(),
		Slug:            "clinica-norte",
		DeviceID:        "dev-1",
		IsActive:        true,
		Timezone:        "UTC",
		MetaAccessToken: "EAAB-secret-token-9876",
		WassengerAPIKey: "abc",
	})
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "****9876")
	require.Contains(t, out, "wassengerApiKey:")
	require.NotContains(t, out, "secret")
	require.NotContains(t, out, "handoffWindow")
}
