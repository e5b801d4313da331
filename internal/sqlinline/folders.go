package sqlinline

const QInsertFolder = `--sql 960a4488-a5a5-4321-988f-21984d43fa39
insert into folders(id, user_id, name, created_at)
values ($1::uuid, $2::uuid, $3::text, now())
returning created_at;
`

const QListFoldersByUser = `--sql 55f79737-1677-4a9b-880d-97e50aa0fb6e
select id, user_id, name, created_at
from folders
where user_id = $1::uuid
order by created_at desc;
`
