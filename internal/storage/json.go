package storage

import "encoding/json"

// Tags, schemas and enrichment payloads are stored as JSON text columns but
// cross the API as real JSON values, not as quoted strings. The codecs below
// splice the stored text into the message on the way out and capture the raw
// value back into the text field on the way in.

func rawOrDefault(text, def string) json.RawMessage {
	if text == "" {
		return json.RawMessage(def)
	}
	return json.RawMessage(text)
}

func textFromRaw(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	return string(raw)
}

func (n Note) MarshalJSON() ([]byte, error) {
	type alias Note
	return json.Marshal(struct {
		alias
		Tags       json.RawMessage `json:"tags"`
		Enrichment json.RawMessage `json:"enrichment_data,omitempty"`
	}{alias(n), rawOrDefault(n.Tags, "[]"), json.RawMessage(n.EnrichmentJSON)})
}

func (n *Note) UnmarshalJSON(data []byte) error {
	type alias Note
	aux := struct {
		*alias
		Tags       json.RawMessage `json:"tags"`
		Enrichment json.RawMessage `json:"enrichment_data"`
	}{alias: (*alias)(n)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	n.Tags = textFromRaw(aux.Tags)
	n.EnrichmentJSON = textFromRaw(aux.Enrichment)
	return nil
}

func (t Task) MarshalJSON() ([]byte, error) {
	type alias Task
	return json.Marshal(struct {
		alias
		Enrichment json.RawMessage `json:"enrichment_data,omitempty"`
	}{alias(t), json.RawMessage(t.EnrichmentJSON)})
}

func (t *Task) UnmarshalJSON(data []byte) error {
	type alias Task
	aux := struct {
		*alias
		Enrichment json.RawMessage `json:"enrichment_data"`
	}{alias: (*alias)(t)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t.EnrichmentJSON = textFromRaw(aux.Enrichment)
	return nil
}

func (a Activity) MarshalJSON() ([]byte, error) {
	type alias Activity
	return json.Marshal(struct {
		alias
		Schema     json.RawMessage `json:"schema"`
		Enrichment json.RawMessage `json:"enrichment_data,omitempty"`
	}{alias(a), rawOrDefault(a.SchemaJSON, "{}"), json.RawMessage(a.EnrichmentJSON)})
}

func (a *Activity) UnmarshalJSON(data []byte) error {
	type alias Activity
	aux := struct {
		*alias
		Schema     json.RawMessage `json:"schema"`
		Enrichment json.RawMessage `json:"enrichment_data"`
	}{alias: (*alias)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.SchemaJSON = textFromRaw(aux.Schema)
	a.EnrichmentJSON = textFromRaw(aux.Enrichment)
	return nil
}
