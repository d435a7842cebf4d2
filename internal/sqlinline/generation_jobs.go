package sqlinline

const QSelectGenerationJobStatus = `--sql 3031daa8-9764-472f-8c6f-6057fe194191
select
  status,
  coalesce(progress, 0),
  coalesce(error_message, ''),
  coalesce(image_id::text, ''),
  coalesce(video_id::text, '')
from generation_jobs
where id = $1::uuid
limit 1;
`

// QInstallStatusNotify installs the trigger that publishes status changes on
// the generation_job_status channel consumed by the realtime listener.
const QInstallStatusNotify = `--sql d88820c2-ac2a-4ab8-b8d1-496e8007e384
create or replace function notify_generation_job_status() returns trigger as $$
begin
  perform pg_notify(
    'generation_job_status',
    json_build_object(
      'job_id', new.id,
      'status', new.status,
      'progress', coalesce(new.progress, 0),
      'error_message', coalesce(new.error_message, ''),
      'image_id', coalesce(new.image_id::text, ''),
      'video_id', coalesce(new.video_id::text, '')
    )::text
  );
  return new;
end;
$$ language plpgsql;

drop trigger if exists generation_job_status_notify on generation_jobs;
create trigger generation_job_status_notify
after insert or update of status, progress on generation_jobs
for each row execute function notify_generation_job_status();
`
