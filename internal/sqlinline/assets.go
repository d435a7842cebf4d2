package sqlinline

const QSelectGeneratedAssetByID = `--sql 263b8a27-16aa-4773-bf31-c161da6cfaba
select
  id::text,
  coalesce(job_id::text, ''),
  kind,
  coalesce(bucket, ''),
  storage_path,
  coalesce(outputs, '[]'::jsonb),
  coalesce(thumbnail_path, ''),
  coalesce(title, ''),
  created_at
from generated_assets
where id = $1::uuid
  and deleted_at is null
limit 1;
`

// QListGeneratedAssets pages newest first with a (created_at, id) keyset.
// $5/$6 are null on the first page.
const QListGeneratedAssets = `--sql 5cc22b1c-6bac-49a6-8c91-ac8f3d50f04d
select
  id::text,
  coalesce(job_id::text, ''),
  kind,
  coalesce(bucket, ''),
  storage_path,
  coalesce(outputs, '[]'::jsonb),
  coalesce(thumbnail_path, ''),
  coalesce(title, ''),
  created_at
from generated_assets
where deleted_at is null
  and ($1::text = '' or kind = $1::text)
  and ($2::text = '' or job_id = nullif($2::text, '')::uuid)
  and ($3::text = '' or title ilike '%' || $3::text || '%')
  and ($5::timestamptz is null or (created_at, id) < ($5::timestamptz, $6::uuid))
order by created_at desc, id desc
limit $4::int;
`

const QDeleteGeneratedAsset = `--sql 3a114fee-5afb-4742-876e-fa7946684d70
update generated_assets
set deleted_at = now()
where id = $1::uuid
  and deleted_at is null;
`
