package jobs

import "encoding/json"

// WriteSettings serializes every job currently held into the settings
// blob format used for broker-wide persistence (spec §4.3, §6): an
// array of job hashes, in no particular order.
func (m *Manager) WriteSettings() ([]byte, error) {
	m.mu.RLock()
	snapshot := make([]Data, 0, len(m.jobs))
	for _, d := range m.jobs {
		snapshot = append(snapshot, *d)
	}
	m.mu.RUnlock()

	hashes := make([]json.RawMessage, 0, len(snapshot))
	for _, d := range snapshot {
		hash, err := d.ToHash()
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	return json.Marshal(hashes)
}

// ReadSettings restores the full set of jobs from a blob previously
// produced by WriteSettings. Each restored job keeps its original
// MoleQueueID (unlike NewJobFromData, which always assigns a fresh one)
// and the Manager's id counter is advanced past the highest id seen, so
// subsequently created jobs never collide with a restored one.
func (m *Manager) ReadSettings(blob []byte) error {
	var hashes []json.RawMessage
	if err := json.Unmarshal(blob, &hashes); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, raw := range hashes {
		d, err := FromHash(raw)
		if err != nil {
			return err
		}
		if d.Keywords == nil {
			d.Keywords = make(map[string]string)
		}
		data := d
		m.jobs[d.MoleQueueID] = &data
		if d.MoleQueueID >= m.nextID {
			m.nextID = d.MoleQueueID + 1
		}
	}
	return nil
}
