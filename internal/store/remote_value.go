// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package store

import "encoding/json"

// remoteValue backs a name first seen through a "values=" announcement
// from a remote connection, with no matching local registration. It
// mirrors the original server's cypilotValue, which is constructed the
// same way on an unrecognized register() call.
type remoteValue struct {
	name       string
	value      any
	writable   bool
	persistent bool
	info       map[string]any
	notify     func()
}

func newRemoteValue(name string, info map[string]any) *remoteValue {
	writable, _ := info["writable"].(bool)
	persistent, _ := info["persistent"].(bool)
	return &remoteValue{name: name, writable: writable, persistent: persistent, info: info}
}

func (r *remoteValue) Name() string         { return r.name }
func (r *remoteValue) Get() any             { return r.value }
func (r *remoteValue) Writable() bool       { return r.writable }
func (r *remoteValue) Persistent() bool     { return r.persistent }
func (r *remoteValue) Info() map[string]any { return r.info }

func (r *remoteValue) Set(v any) {
	r.value = v
	if r.notify != nil {
		r.notify()
	}
}

func (r *remoteValue) Update(v any) {
	if r.value != v {
		r.Set(v)
	}
}

func (r *remoteValue) Msg() string {
	body, err := json.Marshal(r.value)
	if err != nil {
		return "null"
	}
	return string(body)
}

// SetNotify registers fn to run after every Set/Update, the same
// push-on-publish hook values.base offers built-in types.
func (r *remoteValue) SetNotify(fn func()) { r.notify = fn }
