// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"fmt"
)

var attrs map[string]interface{} = map[string]interface{}{}
var EAttrExists = fmt.Errorf("an attr with this name already exists")

// GetAttr gets an attribute of the current log stack.
func GetAttr(key string) (interface{}, bool) {
	v, ok := attrs[key]
	return v, ok
}

// SetAttr sets an attribute of the current log stack. Newly-attached logs
// must register any attrs with unique names - e.g. the boot controller's
// session id, the runtime monitor's instance id.
func SetAttr(key string, val interface{}) error {
	_, exists := attrs[key]
	if exists {
		return EAttrExists
	}
	attrs[key] = val
	return nil
}

// ClearAttrs removes all attrs from the map.
func ClearAttrs() {
	for key := range attrs {
		delete(attrs, key)
	}
}
