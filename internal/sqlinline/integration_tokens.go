package sqlinline

const QSelectIntegrationToken = `--sql e051ca12-2766-49d6-9e46-bf807a9b8a9f
select token
from integration_tokens
where provider = $1::text
limit 1;
`

const QUpsertIntegrationToken = `--sql 03e3ae2a-0ae3-46f1-8d1d-4cd2f5eda96d
insert into integration_tokens(provider, token, properties, created_at, updated_at)
values ($1::text, $2::text, $3::jsonb, now(), now())
on conflict (provider)
do update set token = excluded.token, properties = excluded.properties, updated_at = now();
`
