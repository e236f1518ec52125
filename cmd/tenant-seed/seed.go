package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"clinic_webhook_backend/internal/tenants"
	"clinic_webhook_backend/platform/validator"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Tenants []tenants.UpsertParams `yaml:"tenants"`
}

// tenantView is the printable form of a tenant; credentials are masked.
type tenantView struct {
	ID              string `yaml:"id"`
	Slug            string `yaml:"slug"`
	Name            string `yaml:"name"`
	DeviceID        string `yaml:"deviceId"`
	WebhookURL      string `yaml:"webhookUrl,omitempty"`
	IsActive        bool   `yaml:"isActive"`
	HandoffWindow   string `yaml:"handoffWindow,omitempty"`
	Timezone        string `yaml:"timezone"`
	MetaPixelID     string `yaml:"metaPixelId,omitempty"`
	MetaAccessToken string `yaml:"metaAccessToken,omitempty"`
	WassengerAPIKey string `yaml:"wassengerApiKey,omitempty"`
}

func parseSeedFile(r io.Reader, val *validator.Validator) ([]tenants.UpsertParams, error) {
	var file seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("seed file is empty")
		}
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if len(file.Tenants) == 0 {
		return nil, errors.New("seed file lists no tenants")
	}

	seenSlug := make(map[string]int, len(file.Tenants))
	seenDevice := make(map[string]int, len(file.Tenants))
	for i, p := range file.Tenants {
		if err := val.Struct(p); err != nil {
			return nil, fmt.Errorf("tenant #%d: %s", i+1, strings.Join(validator.FieldErrors(err), ", "))
		}
		if j, dup := seenSlug[p.Slug]; dup {
			return nil, fmt.Errorf("tenant #%d: slug %q already used by tenant #%d", i+1, p.Slug, j+1)
		}
		if j, dup := seenDevice[p.DeviceID]; dup {
			return nil, fmt.Errorf("tenant #%d: device %q already used by tenant #%d", i+1, p.DeviceID, j+1)
		}
		seenSlug[p.Slug] = i
		seenDevice[p.DeviceID] = i
	}
	return file.Tenants, nil
}

func writeTenant(w io.Writer, t tenants.Tenant) error {
	view := tenantView{
		ID:              t.ID.String(),
		Slug:            t.Slug,
		Name:            t.Name,
		DeviceID:        t.DeviceID,
		WebhookURL:      t.WebhookURL,
		IsActive:        t.IsActive,
		Timezone:        t.Timezone,
		MetaPixelID:     t.MetaPixelID,
		MetaAccessToken: mask(t.MetaAccessToken),
		WassengerAPIKey: mask(t.WassengerAPIKey),
	}
	if t.HandoffWindow > 0 {
		view.HandoffWindow = t.HandoffWindow.String()
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(view); err != nil {
		return err
	}
	return enc.Close()
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
