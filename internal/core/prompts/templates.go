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

package prompts

// The templates below are the defaults used when the configuration does not
// provide its own under [prompt_templates].

// DefaultClipPrompt is the request sent with the source video. It receives
// the fields of templateParams.
const DefaultClipPrompt = `{{ .STYLE }}

## TASK
Analyze this product video and rewrite it as {{ .CLIP_COUNT }} clips featuring "{{ .PRODUCT }}".
The video lasts {{ printf "%.1f" .DURATION }} seconds and was cut at these times:
{{ range .SEGMENTS }}  Clip {{ .Index }}: {{ printf "%.1f" .StartTime }}s - {{ printf "%.1f" .EndTime }}s ({{ printf "%.1f" .TargetDuration }}s to generate){{ if .PacingNote }} {{ .PacingNote }}{{ end }}
{{ end }}{{ if .SCENES }}Detected scene cuts: {{ range .SCENES }}{{ printf "%.1f" .Start }}s {{ end }}
{{ end }}
For every clip describe what the camera sees, reuse the speaker's words as the
transcript and mention "{{ .PRODUCT }}" by name two or three times. Never write
"the product". Keep one person, one background, one camera style and one
lighting setup for the whole video and describe them once in "visual".

## OUTPUT
Respond with JSON only, exactly {{ .CLIP_COUNT }} entries in "clips", shaped like:
{{ .EXAMPLE_JSON }}
`

// DefaultVeoStyle follows the five part formula Veo responds to.
const DefaultVeoStyle = `You are a video producer writing prompts for Google Veo 3.1.
Each prompt follows [Cinematography] + [Subject] + [Action] + [Context] + [Style & Ambiance].
Use camera vocabulary such as dolly shot, tracking shot, close-up, shallow depth of field.
Always name the lighting. Write dialogue as: A woman says, "words here." (no subtitles)
Write sound effects as: SFX: description.`

// DefaultSoraStyle asks for cinematographer style production briefs.
const DefaultSoraStyle = `You are a cinematographer writing production briefs for Sora 2.
Each prompt is a prose scene description followed by Cinematography (camera shot, camera
movement, lens, mood) and Actions written as short beats. Be specific about light and color,
use one camera move and one subject action per clip and keep dialogue under twelve words.`
