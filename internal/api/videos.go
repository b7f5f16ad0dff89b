// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// VideoRouter serves artifacts kept by services.LocalStorage.
func (h *Handlers) VideoRouter(r *gin.RouterGroup) {
	r.GET("/videos/:session/:file", func(c *gin.Context) {
		if h.Videos == nil {
			c.Status(http.StatusNotFound)
			return
		}
		path, err := h.Videos.Path(c.Param("session"), c.Param("file"))
		if err != nil {
			writeError(c, err)
			return
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			c.Status(http.StatusNotFound)
			return
		}
		c.File(path)
	})
}
