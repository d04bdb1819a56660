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
	NONE                       int16 = 0
	UNKNOWN_SERVER_ERROR       int16 = -1
	UNKNOWN_TOPIC_OR_PARTITION int16 = 3
	UNSUPPORTED_VERSION        int16 = 35
	UNKNOWN_TOPIC_ID           int16 = 100
)

// UNSUPPORTED_API_KEY is the code sent after the correlation id when a request
// names an API the broker does not serve. It shares wire value 3 with
// UNKNOWN_TOPIC_OR_PARTITION.
const UNSUPPORTED_API_KEY int16 = 3

// TopicAuthorizedOperations is the authorized-operations bitfield reported
// for every topic in DescribeTopicPartitions responses.
const TopicAuthorizedOperations int32 = 0x00000df8
