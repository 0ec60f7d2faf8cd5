/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package queuestats

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// QueueList is an ordered list of queue configurations. It decodes from a
// comma separated environment value of the form
//
//	orders,billing:prod-cluster:billing-worker
//
// where each entry is either a bare queue name or name:cluster:service.
type QueueList []QueueConfig

// EnvDecode implements envconfig.Decoder.
func (l *QueueList) EnvDecode(val string) error {
	parsed, err := ParseQueueList(val)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseQueueList parses the environment form of a QueueList.
func ParseQueueList(val string) (QueueList, error) {
	var out QueueList
	for _, entry := range strings.Split(val, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		switch len(parts) {
		case 1:
			out = append(out, QueueConfig{Name: parts[0]})
		case 3:
			qc := QueueConfig{
				Name:            strings.TrimSpace(parts[0]),
				ConsumerCluster: strings.TrimSpace(parts[1]),
				ConsumerService: strings.TrimSpace(parts[2]),
			}
			if (qc.ConsumerCluster == "") != (qc.ConsumerService == "") {
				return nil, fmt.Errorf("queue %q: cluster and service must be set together", qc.Name)
			}
			out = append(out, qc)
		default:
			return nil, fmt.Errorf("malformed queue entry %q, want name or name:cluster:service", entry)
		}
		if strings.TrimSpace(out[len(out)-1].Name) == "" {
			return nil, fmt.Errorf("malformed queue entry %q: empty name", entry)
		}
	}
	return out, nil
}

type queueFile struct {
	Queues []QueueConfig `yaml:"queues"`
}

// LoadQueueFile reads queue configurations from a YAML file of the form
//
//	queues:
//	- name: orders
//	- name: billing
//	  cluster: prod-cluster
//	  service: billing-worker
func LoadQueueFile(path string) (QueueList, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read queue file: %w", err)
	}
	var f queueFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse queue file %s: %w", path, err)
	}
	for i, qc := range f.Queues {
		if strings.TrimSpace(qc.Name) == "" {
			return nil, fmt.Errorf("queue file %s: entry %d has no name", path, i)
		}
		if (strings.TrimSpace(qc.ConsumerCluster) == "") != (strings.TrimSpace(qc.ConsumerService) == "") {
			return nil, fmt.Errorf("queue file %s: queue %q: cluster and service must be set together", path, qc.Name)
		}
	}
	return QueueList(f.Queues), nil
}
