// Package repository implements the postgres-backed persistence adapters
// behind every Repository interface declared by internal/identifier,
// internal/structure, internal/messagelog, internal/inbound, and
// internal/scenario, grounded on the reference implementation's pattern of a
// package-level struct of named SQL strings per entity plus a thin service
// wrapping the pgx pool.
package repository

// patientQueries holds every SQL statement touching the patients table.
var patientQueries = struct {
	FindByExternalID string
	Insert           string
	Update           string
}{
	FindByExternalID: `
		SELECT id, family_name, given_names, birth_date, sex, birth_place,
		       national_id, identity_reliability, external_ids, merged_into,
		       created_at, updated_at
		FROM patients
		WHERE external_ids @> $1::jsonb
		LIMIT 1;
	`,
	Insert: `
		INSERT INTO patients (
			id, family_name, given_names, birth_date, sex, birth_place,
			national_id, identity_reliability, external_ids, merged_into,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);
	`,
	Update: `
		UPDATE patients SET
			family_name = $2, given_names = $3, birth_date = $4, sex = $5,
			birth_place = $6, national_id = $7, identity_reliability = $8,
			external_ids = $9, merged_into = $10, updated_at = $11
		WHERE id = $1;
	`,
}

var dossierQueries = struct {
	FindBySequence string
	Insert         string
	Update         string
}{
	FindBySequence: `
		SELECT id, patient_id, juridical_entity_id, sequence_number, admit_time,
		       type, medical_uf_code, housing_uf_code, care_uf_code, venue_ids,
		       created_at, updated_at
		FROM dossiers
		WHERE juridical_entity_id = $1 AND sequence_number = $2;
	`,
	Insert: `
		INSERT INTO dossiers (
			id, patient_id, juridical_entity_id, sequence_number, admit_time,
			type, medical_uf_code, housing_uf_code, care_uf_code, venue_ids,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);
	`,
	Update: `
		UPDATE dossiers SET
			medical_uf_code = $2, housing_uf_code = $3, care_uf_code = $4,
			venue_ids = $5, updated_at = $6
		WHERE id = $1;
	`,
}

var venueQueries = struct {
	FindBySequence string
	Insert         string
	Update         string
}{
	FindBySequence: `
		SELECT v.id, v.dossier_id, v.sequence_number, v.start_time, v.end_time,
		       v.status, v.current_location, v.movement_ids, v.created_at, v.updated_at
		FROM venues v
		JOIN dossiers d ON d.id = v.dossier_id
		WHERE d.juridical_entity_id = $1 AND v.sequence_number = $2;
	`,
	Insert: `
		INSERT INTO venues (
			id, dossier_id, sequence_number, start_time, end_time, status,
			current_location, movement_ids, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);
	`,
	Update: `
		UPDATE venues SET
			end_time = $2, status = $3, current_location = $4, movement_ids = $5,
			updated_at = $6
		WHERE id = $1;
	`,
}

var movementQueries = struct {
	Insert           string
	ListByDossier    string
	LastNonCancelled string
}{
	Insert: `
		INSERT INTO movements (
			id, venue_id, sequence_number, timestamp, trigger, action, historic,
			original_trigger, medical_uf, care_uf, nature, location, prior_location,
			cancels_movement_id, cancelled, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16);
	`,
	ListByDossier: `
		SELECT m.id, m.venue_id, m.sequence_number, m.timestamp, m.trigger, m.action,
		       m.historic, m.original_trigger, m.medical_uf, m.care_uf, m.nature,
		       m.location, m.prior_location, m.cancels_movement_id, m.cancelled, m.created_at
		FROM movements m
		JOIN venues v ON v.id = m.venue_id
		WHERE v.dossier_id = $1
		ORDER BY m.timestamp ASC;
	`,
	LastNonCancelled: `
		SELECT id, venue_id, sequence_number, timestamp, trigger, action,
		       historic, original_trigger, medical_uf, care_uf, nature,
		       location, prior_location, cancels_movement_id, cancelled, created_at
		FROM movements
		WHERE venue_id = $1 AND cancelled = false
		ORDER BY timestamp DESC
		LIMIT 1;
	`,
}

var namespaceQueries = struct {
	Find         string
	IsAssigned   string
	Assign       string
	CountAssigned string
}{
	Find: `
		SELECT id, system_uri, oid, type, owning_entity_id, mode, prefix_pattern,
		       range_min, range_max
		FROM identifier_namespaces
		WHERE type = $1 AND (owning_entity_id = $2 OR owning_entity_id = '')
		ORDER BY owning_entity_id DESC
		LIMIT 1;
	`,
	IsAssigned: `SELECT EXISTS(SELECT 1 FROM identifier_assignments WHERE namespace_id = $1 AND value = $2);`,
	Assign:     `INSERT INTO identifier_assignments (namespace_id, value, assigned_at) VALUES ($1,$2,NOW());`,
	CountAssigned: `SELECT COUNT(*) FROM identifier_assignments WHERE namespace_id = $1;`,
}

var structureQueries = struct {
	FindByCode string
	FindByID   string
	Insert     string
}{
	FindByCode: `
		SELECT id, kind, code, label, parent_id, juridical_entity_id, finess, virtual
		FROM structure_nodes
		WHERE code = $1 AND kind = $2 AND juridical_entity_id = $3;
	`,
	FindByID: `
		SELECT id, kind, code, label, parent_id, juridical_entity_id, finess, virtual
		FROM structure_nodes
		WHERE id = $1;
	`,
	Insert: `
		INSERT INTO structure_nodes (id, kind, code, label, parent_id, juridical_entity_id, finess, virtual)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8);
	`,
}

var messageLogQueries = struct {
	FindByControlID string
	Insert          string
	UpdateStatus    string
}{
	FindByControlID: `
		SELECT id, control_id, trigger, direction, correlation_id, raw, timestamp,
		       status, diagnostics, endpoint_id
		FROM message_log
		WHERE control_id = $1 AND direction = 'inbound';
	`,
	Insert: `
		INSERT INTO message_log (
			id, control_id, trigger, direction, correlation_id, raw, timestamp,
			status, diagnostics, endpoint_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);
	`,
	UpdateStatus: `
		UPDATE message_log SET status = $2, diagnostics = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING id;
	`,
}

var scenarioTemplateQueries = struct {
	FindByKey string
	Upsert    string
}{
	FindByKey: `
		SELECT id, key, name, description, category, tags, protocols, time_config,
		       steps, created_at
		FROM scenario_templates
		WHERE key = $1;
	`,
	Upsert: `
		INSERT INTO scenario_templates (id, key, name, description, category, tags,
			protocols, time_config, steps, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (key) DO UPDATE SET
			name = EXCLUDED.name, description = EXCLUDED.description,
			category = EXCLUDED.category, tags = EXCLUDED.tags,
			protocols = EXCLUDED.protocols, time_config = EXCLUDED.time_config,
			steps = EXCLUDED.steps;
	`,
}

var endpointQueries = struct {
	FindByID string
	Insert   string
}{
	FindByID: `
		SELECT id, type, host, port, inbox_path, outbox_path, file_glob,
		       poll_interval_seconds, tls_ca_bundle, forced_identifier_system,
		       forced_identifier_oid, owning_entity_id, receiving_application,
		       receiving_facility, fhir_base_url
		FROM endpoints
		WHERE id = $1;
	`,
	Insert: `
		INSERT INTO endpoints (
			id, type, host, port, inbox_path, outbox_path, file_glob,
			poll_interval_seconds, tls_ca_bundle, forced_identifier_system,
			forced_identifier_oid, owning_entity_id, receiving_application,
			receiving_facility, fhir_base_url
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type, host = EXCLUDED.host, port = EXCLUDED.port,
			inbox_path = EXCLUDED.inbox_path, outbox_path = EXCLUDED.outbox_path,
			file_glob = EXCLUDED.file_glob, poll_interval_seconds = EXCLUDED.poll_interval_seconds,
			tls_ca_bundle = EXCLUDED.tls_ca_bundle,
			forced_identifier_system = EXCLUDED.forced_identifier_system,
			forced_identifier_oid = EXCLUDED.forced_identifier_oid,
			owning_entity_id = EXCLUDED.owning_entity_id,
			receiving_application = EXCLUDED.receiving_application,
			receiving_facility = EXCLUDED.receiving_facility,
			fhir_base_url = EXCLUDED.fhir_base_url;
	`,
}

var scenarioRunQueries = struct {
	RecordStep     string
	RunsInWindow   string
}{
	RecordStep: `
		INSERT INTO scenario_runs (
			id, template_key, endpoint_id, protocol, juridical_entity_id,
			ipp_prefix_override, nda_prefix_override, generated_ipp, generated_nda,
			generated_vn, started_at, finished_at, step_results, aggregate_status,
			dry_run, stop_on_error, cancelled
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at, step_results = EXCLUDED.step_results,
			aggregate_status = EXCLUDED.aggregate_status, cancelled = EXCLUDED.cancelled;
	`,
	RunsInWindow: `
		SELECT id, template_key, endpoint_id, protocol, juridical_entity_id,
		       ipp_prefix_override, nda_prefix_override, generated_ipp, generated_nda,
		       generated_vn, started_at, finished_at, step_results, aggregate_status,
		       dry_run, stop_on_error, cancelled
		FROM scenario_runs
		WHERE template_key = $1 AND started_at >= $2 AND started_at < $3 AND finished_at IS NOT NULL;
	`,
}
