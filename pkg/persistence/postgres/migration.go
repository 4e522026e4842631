package postgres

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflow_definitions (
				id UUID PRIMARY KEY,
				workspace_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT,
				status VARCHAR(50) NOT NULL,
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				execution_order JSONB NOT NULL DEFAULT '[]',
				version INT NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_definitions_workspace ON workflow_definitions(workspace_id);
			CREATE INDEX idx_workflow_definitions_status ON workflow_definitions(status);
			CREATE INDEX idx_workflow_definitions_deleted_at ON workflow_definitions(deleted_at);

			CREATE TABLE workflow_versions (
				id UUID PRIMARY KEY,
				definition_id UUID NOT NULL REFERENCES workflow_definitions(id) ON DELETE CASCADE,
				version INT NOT NULL,
				graph JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				created_by VARCHAR(255),
				UNIQUE (definition_id, version)
			);

			CREATE INDEX idx_workflow_versions_definition ON workflow_versions(definition_id);

			CREATE TABLE automations (
				id UUID PRIMARY KEY,
				workspace_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				definition_id UUID NOT NULL REFERENCES workflow_definitions(id),
				trigger_type VARCHAR(255) NOT NULL,
				trigger_config JSONB NOT NULL DEFAULT '{}',
				conditions JSONB NOT NULL DEFAULT '[]',
				retry_config JSONB NOT NULL DEFAULT '{}',
				enabled BOOLEAN NOT NULL DEFAULT true,
				notify_on_failure BOOLEAN NOT NULL DEFAULT false,
				notify_recipients JSONB NOT NULL DEFAULT '[]',
				total_runs BIGINT NOT NULL DEFAULT 0,
				successful_runs BIGINT NOT NULL DEFAULT 0,
				failed_runs BIGINT NOT NULL DEFAULT 0,
				runs_this_month BIGINT NOT NULL DEFAULT 0,
				monthly_run_limit BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_automations_workspace_trigger ON automations(workspace_id, trigger_type);
			CREATE INDEX idx_automations_trigger_type ON automations(trigger_type);
			CREATE INDEX idx_automations_enabled ON automations(enabled);

			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				workspace_id VARCHAR(255) NOT NULL,
				automation_id UUID NOT NULL,
				definition_id UUID NOT NULL,
				definition_version INT NOT NULL,
				status VARCHAR(50) NOT NULL,
				current_node_id VARCHAR(255),
				next_node_id VARCHAR(255),
				context JSONB NOT NULL DEFAULT '{}',
				resume_at TIMESTAMP WITH TIME ZONE,
				wait_event_type VARCHAR(255),
				wait_event_filter JSONB,
				wait_timeout_at TIMESTAMP WITH TIME ZONE,
				retry_count INT NOT NULL DEFAULT 0,
				error TEXT,
				error_node_id VARCHAR(255),
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_workspace ON executions(workspace_id);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_resume_at ON executions(resume_at) WHERE status = 'paused';
			CREATE INDEX idx_executions_wait_timeout ON executions(wait_timeout_at) WHERE status = 'paused';
			CREATE INDEX idx_executions_automation ON executions(automation_id);

			CREATE TABLE execution_steps (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				node_type VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				input_data JSONB,
				output_data JSONB,
				condition_result BOOLEAN,
				error TEXT,
				error_type VARCHAR(50),
				retry_count INT NOT NULL DEFAULT 0,
				executed_at TIMESTAMP WITH TIME ZONE NOT NULL,
				duration_ms BIGINT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_execution_steps_execution ON execution_steps(execution_id, executed_at);
			CREATE INDEX idx_execution_steps_node ON execution_steps(node_id);

			CREATE TABLE event_subscriptions (
				id UUID PRIMARY KEY,
				workspace_id VARCHAR(255) NOT NULL,
				execution_id VARCHAR(255) NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				event_type VARCHAR(255) NOT NULL,
				event_filter JSONB,
				timeout_at TIMESTAMP WITH TIME ZONE,
				is_active BOOLEAN NOT NULL DEFAULT true,
				matched_event_data JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				matched_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_event_subscriptions_active ON event_subscriptions(event_type) WHERE is_active;
			CREATE UNIQUE INDEX idx_event_subscriptions_execution_active ON event_subscriptions(execution_id) WHERE is_active;

			CREATE TABLE dead_letter_entries (
				id UUID PRIMARY KEY,
				workspace_id VARCHAR(255) NOT NULL,
				automation_id UUID NOT NULL,
				execution_id VARCHAR(255) NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				node_type VARCHAR(255) NOT NULL,
				error_type VARCHAR(50) NOT NULL,
				error_message TEXT,
				retry_count INT NOT NULL DEFAULT 0,
				input_data JSONB,
				execution_context JSONB,
				status VARCHAR(50) NOT NULL DEFAULT 'pending',
				notes TEXT,
				resolved_by VARCHAR(255),
				resolved_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_dead_letter_workspace_status ON dead_letter_entries(workspace_id, status);
			CREATE INDEX idx_dead_letter_execution ON dead_letter_entries(execution_id);
		`,
	}
}
