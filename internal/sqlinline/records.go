// Package sqlinline holds the marker-tagged SQL statements executed through
// infra.SQLRunner. The marker line lets log output reference queries without
// echoing SQL text.
package sqlinline

const QInsertMediaRecord = `--sql a3281bdf-530c-4ecc-bd8c-a859607656d7
insert into media_records(
  id,
  user_id,
  provider,
  params,
  prompt_text,
  source_type,
  metadata,
  folder_id,
  media_kind,
  storage_key,
  created_at
) values (
  $1::uuid,
  $2::uuid,
  $3::text,
  $4::jsonb,
  $5::text,
  $6::text,
  $7::jsonb,
  nullif($8::text, '')::uuid,
  $9::text,
  $10::text,
  now()
) returning created_at;
`

const QSelectMediaByID = `--sql 033fdc33-e9f0-4a22-92e9-e24c24729a93
select id, user_id, provider, params, prompt_text, source_type, metadata,
       folder_id, media_kind, storage_key, created_at
from media_records
where id = $1::uuid
limit 1;
`

const QListMediaByUser = `--sql 22061e7e-45f7-402e-a044-086d353e9cc7
select id, user_id, provider, params, prompt_text, source_type, metadata,
       folder_id, media_kind, storage_key, created_at
from media_records
where user_id = $1::uuid
  and ($2::text = '' or media_kind = $2::text)
  and ($3::text = '' or folder_id = $3::uuid)
order by created_at desc
limit $4::int offset $5::int;
`

const QUpdateMediaFolder = `--sql aa7d7e2c-9746-4e18-9f66-709f2a37f869
update media_records
set folder_id = nullif($3::text, '')::uuid
where id = $1::uuid and user_id = $2::uuid
returning id;
`

const QUpdateMediaMetadata = `--sql dbc5197f-57e2-40b5-bfca-88e6e5adebcb
update media_records
set metadata = $3::jsonb
where id = $1::uuid and user_id = $2::uuid
returning id;
`

const QDeleteMediaRecords = `--sql 710f272e-cfd1-4f34-94d4-987d6ade52d6
delete from media_records
where user_id = $1::uuid and id = any($2::uuid[]);
`
