// Copyright 2024 The wsgate-go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package codec parses inbound text frames into structured messages. A frame
// is a JSON object carrying at least a device identity and a topic
// discriminator; direct and group messages additionally carry a target and a
// payload. The codec is stateless and performs no I/O.
package codec

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrMalformed is returned when a frame is not a JSON object.
	ErrMalformed = errors.New("frame is not a valid JSON object")
	// ErrMissingDevice is returned when the device identity field is empty.
	ErrMissingDevice = errors.New("frame has no device identity")
	// ErrMissingTopic is returned when the topic discriminator is empty.
	ErrMissingTopic = errors.New("frame has no topic")
)

// Frame is a parsed inbound message. Raw keeps the original frame text so the
// data path can forward the payload to the backend untouched.
type Frame struct {
	Device  string `json:"device"`
	Topic   string `json:"topic"`
	Target  string `json:"target"`
	Group   string `json:"group"`
	Message string `json:"message"`
	Raw     string `json:"-"`
}

// wireFrame carries the legacy field names still used by deployed devices:
// "command" for the message payload and "deviceGroup" for the group target.
type wireFrame struct {
	Frame
	Command     string `json:"command"`
	DeviceGroup string `json:"deviceGroup"`
}

// Parse decodes a single text frame. It returns ErrMalformed for anything
// that is not a JSON object and ErrMissingDevice/ErrMissingTopic when the
// required fields are absent or blank.
func Parse(raw string) (*Frame, error) {
	var wf wireFrame
	if err := json.Unmarshal([]byte(raw), &wf); err != nil {
		return nil, ErrMalformed
	}

	f := wf.Frame
	f.Raw = raw
	f.Device = strings.TrimSpace(f.Device)
	f.Topic = strings.TrimSpace(f.Topic)
	f.Target = strings.TrimSpace(f.Target)

	if f.Message == "" {
		f.Message = wf.Command
	}
	if f.Group == "" {
		f.Group = wf.DeviceGroup
	}
	f.Group = strings.TrimSpace(f.Group)

	if f.Device == "" {
		return nil, ErrMissingDevice
	}
	if f.Topic == "" {
		return nil, ErrMissingTopic
	}
	return &f, nil
}
