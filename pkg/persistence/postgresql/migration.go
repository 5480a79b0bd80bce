package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create workflows table
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL DEFAULT '',
				owner_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'active', 'paused', 'archived')),
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_owner_status ON workflows(owner_id, status);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);
		`,
		2: `
			-- Workflow runs outlive their workflow, so there is no foreign key.
			CREATE TABLE workflow_runs (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				owner_id VARCHAR(255) NOT NULL DEFAULT '',
				trigger_node_id VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('running', 'waiting', 'completed', 'failed')),
				current_node_id VARCHAR(255) NOT NULL DEFAULT '',
				scheduled_resume_at TIMESTAMP WITH TIME ZONE,
				triggering_event JSONB NOT NULL DEFAULT '{}',
				context JSONB NOT NULL DEFAULT '{}',
				suspensions JSONB NOT NULL DEFAULT '[]',
				steps JSONB NOT NULL DEFAULT '[]',
				error_message TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_runs_workflow_id ON workflow_runs(workflow_id, created_at DESC);
			CREATE INDEX idx_workflow_runs_due ON workflow_runs(scheduled_resume_at) WHERE status = 'waiting';
		`,
		3: `
			CREATE TABLE schedules (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				owner_id VARCHAR(255) NOT NULL DEFAULT '',
				cron_expression VARCHAR(255) NOT NULL,
				next_due_at TIMESTAMP WITH TIME ZONE NOT NULL,
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_schedules_workflow_id ON schedules(workflow_id);
			CREATE INDEX idx_schedules_due ON schedules(next_due_at) WHERE active;
		`,
		4: `
			-- A running run belongs to the runner holding claim_token until lease_until.
			ALTER TABLE workflow_runs ADD COLUMN claim_token VARCHAR(255) NOT NULL DEFAULT '';
			ALTER TABLE workflow_runs ADD COLUMN lease_until TIMESTAMP WITH TIME ZONE;

			DROP INDEX idx_workflow_runs_due;
			CREATE INDEX idx_workflow_runs_due ON workflow_runs(scheduled_resume_at) WHERE status IN ('waiting', 'running');
		`,
	}
}
