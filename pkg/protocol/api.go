// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
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

package protocol

const (
	APIKeyFetch                   int16 = 1
	APIKeyApiVersion              int16 = 18
	APIKeyDescribeTopicPartitions int16 = 75
)

// Version ranges this broker implements.
const (
	ApiVersionsMinVersion             int16 = 0
	ApiVersionsMaxVersion             int16 = 4
	FetchMinVersion                   int16 = 0
	FetchMaxVersion                   int16 = 16
	DescribeTopicPartitionsMinVersion int16 = 0
	DescribeTopicPartitionsMaxVersion int16 = 0
)

type ApiVersion struct {
	APIKey     int16
	MinVersion int16
	MaxVersion int16
}

// Supports reports whether version falls inside the advertised range.
func (v ApiVersion) Supports(version int16) bool {
	return version >= v.MinVersion && version <= v.MaxVersion
}
