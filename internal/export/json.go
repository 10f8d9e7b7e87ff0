// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"

	"github.com/jeranaias/skinchat/internal/model"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter writes the full snapshot. Options do not filter JSON output.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// Export converts a conversation to indented JSON.
func (e *JSONExporter) Export(conv model.Conversation) ([]byte, error) {
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}
